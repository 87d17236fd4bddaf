package jschallenge_test

import "fmt"

func sprintf(format string, args ...interface{}) string {
	return fmt.Sprintf(format, args...)
}

// base64Helper is the decoder hidden-div challenge pages define before
// building their eval argument.
const base64Helper = `var g = String.fromCharCode;
var o = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/=";
var e = function(s) {
  s += "==".slice(2 - (s.length & 3));
  var bm, r = "", r1, r2, i = 0;
  for (; i < s.length;) {
    bm = o.indexOf(s.charAt(i++)) << 18 | o.indexOf(s.charAt(i++)) << 12
      | (r1 = o.indexOf(s.charAt(i++))) << 6 | (r2 = o.indexOf(s.charAt(i++)));
    r += r1 === 64 ? g(bm >> 16 & 255)
      : r2 === 64 ? g(bm >> 16 & 255, bm >> 8 & 255)
      : g(bm >> 16 & 255, bm >> 8 & 255, bm & 255);
  }
  return r;
};
`
