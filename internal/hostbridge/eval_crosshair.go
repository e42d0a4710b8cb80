package hostbridge

import (
	"fmt"

	"github.com/dgnsrekt/crosshair_agent/internal/crosshair"
)

// crosshairBinding is the CDP binding name the overlay calls with serialized
// pointer snapshots. One name is enough: bindingCalled events carry the
// session, which maps back to the chart.
const crosshairBinding = "__crosshairAgentEmit"

// labelElementPrefix prefixes the DOM ids of the injected label elements.
const labelElementPrefix = "__crosshair_label_"

func jsProbeHost() string {
	return wrapJSEval(jsHostPreamble + jsHostGuard + `
var rect = root.getBoundingClientRect();
var len = host.series && host.series.length ? host.series.length : 0;
var pmax = Number(host.primaryMax || 0);
var smax = Number(host.secondaryMax || 0);
return JSON.stringify({ok:true,data:{
  series_length:len,
  primary_max:pmax,
  secondary_max:smax,
  dual_axis:smax > 0,
  width:rect.width,
  height:rect.height
}});
`)
}

func jsLoadSeries() string {
	return wrapJSEval(jsHostPreamble + jsHostGuard + `
if (!host.series || !host.series.length)
  return JSON.stringify({ok:false,error_code:"VALIDATION",error_message:"host series is empty"});
var out = [];
for (var i = 0; i < host.series.length; i++) {
  var c = host.series[i];
  out.push({
    date: String(c.date),
    open: Number(c.open),
    high: Number(c.high),
    low: Number(c.low),
    close: Number(c.close),
    volume: Number(c.volume)
  });
}
return JSON.stringify({ok:true,data:{candles:out}});
`)
}

// jsInstallOverlay creates the hidden label elements and binds the pointer
// handlers. The handlers do no mapping work themselves: they forward a plain
// snapshot through the agent binding and let the Go side own the
// coordinate-to-label logic. Installation is idempotent: a prior overlay is
// torn down first.
func jsInstallOverlay(binding string, dualAxis bool) string {
	dual := "false"
	if dualAxis {
		dual = "true"
	}
	return wrapJSEval(fmt.Sprintf(jsHostPreamble+jsHostGuard+`
if (typeof host.dataFromPixel !== "function" || typeof host.pixelFromData !== "function")
  return JSON.stringify({ok:false,error_code:"HOST_UNAVAILABLE",error_message:"host coordinate transforms unavailable"});
var bindingName = %s;
if (typeof window[bindingName] !== "function")
  return JSON.stringify({ok:false,error_code:"HOST_UNAVAILABLE",error_message:"agent binding not installed: " + bindingName});
if (window.__crosshairCleanup) { try { window.__crosshairCleanup(); } catch(_) {} }

if (getComputedStyle(root).position === "static") root.style.position = "relative";
function _mkLabel(role) {
  var el = document.createElement("div");
  el.id = %s + role;
  el.style.position = "absolute";
  el.style.display = "none";
  el.style.pointerEvents = "none";
  el.style.font = "11px sans-serif";
  el.style.padding = "1px 4px";
  el.style.background = "rgba(255,255,255,0.85)";
  el.style.border = "1px solid #888";
  el.style.whiteSpace = "nowrap";
  el.style.zIndex = "1000";
  root.appendChild(el);
}
_mkLabel("date");
_mkLabel("price");
var dualAxis = %s;
if (dualAxis) _mkLabel("volume");

var emit = window[bindingName];
function _onMove(e) {
  var rect = root.getBoundingClientRect();
  var px = e.clientX - rect.left;
  var py = e.clientY - rect.top;
  var d = host.dataFromPixel(px, py);
  emit(JSON.stringify({
    type: "move",
    x: Number(d.x),
    y: Number(d.y),
    screen_x: px,
    screen_y: py,
    host_width: rect.width,
    host_height: rect.height
  }));
}
function _onLeave() { emit(JSON.stringify({type:"leave"})); }
root.addEventListener("mousemove", _onMove);
root.addEventListener("mouseleave", _onLeave);
window.__crosshairCleanup = function() {
  root.removeEventListener("mousemove", _onMove);
  root.removeEventListener("mouseleave", _onLeave);
  var roles = ["date", "price", "volume"];
  for (var i = 0; i < roles.length; i++) {
    var el = document.getElementById(%s + roles[i]);
    if (el && el.parentNode) el.parentNode.removeChild(el);
  }
  delete window.__crosshairCleanup;
};
return JSON.stringify({ok:true,data:{installed:true,dual_axis:dualAxis}});
`, jsString(binding), jsString(labelElementPrefix), dual, jsString(labelElementPrefix)))
}

// jsApplyLabels renders one label-state snapshot. Screen-units anchors are
// used directly (x from the left edge, y from the bottom edge, matching the
// host convention); data-units anchors go through the host transform. The
// volume label is right-aligned against its anchor.
func jsApplyLabels(set crosshair.LabelSet) string {
	return wrapJSEval(fmt.Sprintf(jsHostPreamble+jsHostGuard+`
var state = %s;
var rect = root.getBoundingClientRect();
function _place(lbl, rightAlign) {
  if (!lbl || !lbl.role) return;
  var el = document.getElementById(%s + lbl.role);
  if (!el) return;
  if (!lbl.visible) { el.style.display = "none"; return; }
  var x, y;
  if (lbl.x_units === "screen") x = lbl.anchor_x + lbl.offset_x;
  else x = host.pixelFromData(lbl.anchor_x, 0).px + lbl.offset_x;
  if (lbl.y_units === "screen") y = rect.height - lbl.anchor_y + lbl.offset_y;
  else y = host.pixelFromData(0, lbl.anchor_y).py + lbl.offset_y;
  el.textContent = lbl.text;
  el.style.left = x + "px";
  el.style.top = y + "px";
  el.style.transform = rightAlign ? "translateX(-100%%)" : "";
  el.style.display = "block";
}
_place(state.date, false);
_place(state.price, false);
_place(state.volume, true);
return JSON.stringify({ok:true,data:{}});
`, jsJSON(set), jsString(labelElementPrefix)))
}

func jsRemoveOverlay() string {
	return wrapJSEval(`
var removed = false;
if (window.__crosshairCleanup) {
  try { window.__crosshairCleanup(); removed = true; } catch(_) {}
}
return JSON.stringify({ok:true,data:{removed:removed}});
`)
}
