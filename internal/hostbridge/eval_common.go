package hostbridge

import "encoding/json"

// jsHostPreamble resolves the page's chart-host object. The host contract is
// small: a `root` element for the drawing area, `dataFromPixel(px, py)` and
// `pixelFromData(x, y)` coordinate transforms where data-space x equals the
// integer sample index, a `series` array of plain OHLCV records, and
// `primaryMax`/`secondaryMax` axis extents (secondaryMax absent or 0 on
// single-axis charts). Pages expose it as window.ChartHost, window.__chartHost,
// or on an element marked data-chart-host.
const jsHostPreamble = `
var host = window.ChartHost || window.__chartHost || null;
if (!host) {
  var _hostEl = document.querySelector("[data-chart-host]");
  if (_hostEl && _hostEl.__chartHost) host = _hostEl.__chartHost;
}
var root = host && host.root ? host.root : null;`

// jsHostGuard bails out of a snippet when the preamble found no usable host.
const jsHostGuard = `
if (!host || !root) return JSON.stringify({ok:false,error_code:"HOST_UNAVAILABLE",error_message:"chart host object not found"});`

func jsString(v string) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func jsJSON(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func buildIIFE(async bool, body string) string {
	prefix := "(function(){\n"
	if async {
		prefix = "(async function(){\n"
	}
	return prefix + `try {
` + body + `
} catch (err) {
return JSON.stringify({ok:false,error_code:"` + CodeEvalFailure + `",error_message:String(err && err.message || err)});
}
})()`
}

func wrapJSEval(body string) string      { return buildIIFE(false, body) }
func wrapJSEvalAsync(body string) string { return buildIIFE(true, body) }
