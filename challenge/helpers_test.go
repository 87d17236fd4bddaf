package challenge_test

import (
	"os"
	"path/filepath"
	"testing"
)

func fixture(t *testing.T, name string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("read fixture %s: %v", name, err)
	}
	return string(b)
}

// syntheticPage carries known field values and a puzzle worth 42.5.
const syntheticPage = `<html><head>
<script type="text/javascript">
setTimeout(function(){ a = document.getElementById('jschl-answer'); a.value = (6 * 7 + 0.5).toFixed(10); }, 4000);
</script></head><body>
<form id="challenge-form" action="/cdn-cgi/l/chk_jschl?jschl_vc=v1&pass=p1" method="POST">
<input type="hidden" name="r" value="abc"/>
<input type="hidden" name="jschl_vc" value="v1"/>
<input type="hidden" name="pass" value="p1"/>
<input type="hidden" id="jschl-answer" name="jschl_answer"/>
</form></body></html>`
