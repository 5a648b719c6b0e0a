package inject

import (
	"bytes"
	"encoding/json"
	"text/template"

	"github.com/conneroisu/docserve/internal/config"
)

// ScrollStorageKey is the localStorage entry holding scroll positions across
// a reload.
const ScrollStorageKey = "__hot_reload_scroll__"

// DefaultScrollSelectors are the elements whose scroll offset survives a
// reload.
var DefaultScrollSelectors = []string{".documentwrapper"}

var clientTemplate = template.Must(template.New("client").Parse(`<script>
(function () {
  var key = {{.Key}};
  var selectors = {{.Selectors}};
  window.addEventListener("load", function () {
    var saved = localStorage.getItem(key);
    if (saved === null) {
      return;
    }
    localStorage.removeItem(key);
    var positions;
    try {
      positions = JSON.parse(saved);
    } catch (e) {
      return;
    }
    Object.keys(positions).forEach(function (selector) {
      var el = document.querySelector(selector);
      if (el) {
        el.scrollTop = positions[selector];
      }
    });
  });
  var source = new EventSource({{.Endpoint}});
  source.onmessage = function (event) {
    if (event.data !== "reload") {
      return;
    }
    var positions = {};
    selectors.forEach(function (selector) {
      var el = document.querySelector(selector);
      if (el) {
        positions[selector] = el.scrollTop;
      }
    });
    localStorage.setItem(key, JSON.stringify(positions));
    location.reload();
  };
  window.addEventListener("beforeunload", function () {
    source.close();
  });
})();
</script>
`))

// Script renders the reload client. It opens a relative EventSource so pages
// in subdirectories reach the endpoint under their own path.
func Script(selectors []string) []byte {
	if len(selectors) == 0 {
		selectors = DefaultScrollSelectors
	}

	data := struct {
		Key       string
		Selectors string
		Endpoint  string
	}{
		Key:       quote(ScrollStorageKey),
		Selectors: quote(selectors),
		Endpoint:  quote(config.HotReloadPath),
	}

	var buf bytes.Buffer
	if err := clientTemplate.Execute(&buf, data); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// quote encodes v as a JavaScript literal. json.Marshal escapes <, > and &,
// so the result cannot close the surrounding script element.
func quote(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}
