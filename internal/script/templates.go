// Package script compiles the parameterized DOM-scripting snippets
// that get injected into retailer pages. All snippets are bodies for
// the execution bridge: they may use await and report their value with
// return. Free-form diagnostics go through the autoShopLog channel
// since the page's own console is not observable from the outside.
package script

import (
	"fmt"
	"strconv"

	"github.com/cartpilot/cartpilot/internal/normalize"
	"github.com/cartpilot/cartpilot/internal/page"
	"github.com/cartpilot/cartpilot/internal/retailer"
)

func queryTokens(query string) []string {
	return normalize.Tokens(query)
}

// CandidateAttr is the attribute used to tag candidate tiles so they
// can be re-located later without re-scanning the page.
const CandidateAttr = "data-cartpilot-id"

// helpers shared by the larger snippets: page logging, host checks,
// visibility, a single-level shadow-root-aware query and a layered
// click simulation (different retailer front-ends bind to different
// event types).
func helpers(p *retailer.Profile) string {
	return fmt.Sprintf(`
  const __cpLog = (msg) => {
    try { window.%s(JSON.stringify({ autoShopLog: String(msg) })); } catch (e) {}
  };
  const __cpAllowedHosts = %s;
  const __cpHostOk = (h) => {
    h = String(h || "").toLowerCase();
    return __cpAllowedHosts.some((a) => h === a || h.endsWith("." + a));
  };
  const __cpVisible = (el) => {
    if (!el || !el.getBoundingClientRect) return false;
    const style = window.getComputedStyle(el);
    if (!style || style.display === "none" || style.visibility === "hidden") return false;
    const rect = el.getBoundingClientRect();
    return rect.width > 1 && rect.height > 1;
  };
  const __cpDeepQueryAll = (root, sel) => {
    let out = [];
    try { out = Array.from(root.querySelectorAll(sel)); } catch (e) { return out; }
    // shadow roots are invisible to querySelectorAll, descend one level
    let walked = 0;
    for (const el of root.querySelectorAll("*")) {
      if (walked++ > 4000) break;
      if (el.shadowRoot) {
        try { out = out.concat(Array.from(el.shadowRoot.querySelectorAll(sel))); } catch (e) {}
      }
    }
    return out;
  };
  const __cpClick = (el) => {
    if (!el) return false;
    try { el.scrollIntoView({ block: "center", inline: "center" }); } catch (e) {}
    const rect = el.getBoundingClientRect();
    const cx = rect.left + rect.width / 2;
    const cy = rect.top + rect.height / 2;
    try {
      const touch = new Touch({ identifier: 1, target: el, clientX: cx, clientY: cy });
      el.dispatchEvent(new TouchEvent("touchstart", { bubbles: true, cancelable: true, touches: [touch] }));
      el.dispatchEvent(new TouchEvent("touchend", { bubbles: true, cancelable: true, changedTouches: [touch] }));
    } catch (e) {}
    const mouseOpts = { bubbles: true, cancelable: true, view: window, clientX: cx, clientY: cy };
    for (const type of ["pointerdown", "mousedown", "pointerup", "mouseup", "click"]) {
      try { el.dispatchEvent(new MouseEvent(type, mouseOpts)); } catch (e) {}
    }
    try { if (typeof el.click === "function") el.click(); } catch (e) {}
    try {
      const inline = el.getAttribute && el.getAttribute("onclick");
      if (inline) new Function(inline).call(el);
    } catch (e) {}
    return true;
  };
  const __cpSleep = (ms) => new Promise((resolve) => setTimeout(resolve, ms));
`, page.BindingName, jsStringArray(p.AllowedHosts))
}

// CollectCandidates scans the loaded listing page for product tiles,
// tags each surviving element with a candidate id and returns the raw
// candidate data. Scoring happens on the Go side so that ranking stays
// deterministic and testable.
func CollectCandidates(p *retailer.Profile, term string, limit int) string {
	return fmt.Sprintf(`%s
  if (!__cpHostOk(window.location.hostname)) {
    return { blocked: true, host: window.location.hostname };
  }
  const tileSelectors = %s;
  const stockMarkers = %s;
  const blockedTokens = %s;
  const limit = %d;
  const seen = new Set();
  const tiles = [];
  for (const sel of tileSelectors) {
    for (const node of __cpDeepQueryAll(document, sel)) {
      if (!seen.has(node)) { seen.add(node); tiles.push(node); }
    }
  }
  __cpLog("collect: " + tiles.length + " raw tiles for \"%s\"");
  const pickImage = (tile) => {
    const img = tile.querySelector("img");
    if (img) {
      if (img.currentSrc) return img.currentSrc;
      if (img.src) return img.src;
      const srcset = img.getAttribute("srcset");
      if (srcset) return srcset.split(",")[0].trim().split(" ")[0];
    }
    for (const el of tile.querySelectorAll("[style*='background-image']")) {
      const m = (el.getAttribute("style") || "").match(/url\(["']?([^"')]+)["']?\)/);
      if (m) return m[1];
    }
    return "";
  };
  const pickHref = (tile) => {
    for (const a of tile.querySelectorAll("a[href]")) {
      let abs = "";
      try { abs = new URL(a.getAttribute("href"), window.location.href).href; } catch (e) { continue; }
      const lower = abs.toLowerCase();
      if (blockedTokens.some((t) => lower.includes(t))) continue;
      let host = "";
      try { host = new URL(abs).hostname; } catch (e) { continue; }
      if (!__cpHostOk(host)) continue;
      return abs;
    }
    return "";
  };
  const candidates = [];
  let nextId = 1;
  const runTag = Date.now().toString(36);
  for (const tile of tiles) {
    const rect = tile.getBoundingClientRect ? tile.getBoundingClientRect() : { width: 0, height: 0 };
    if (rect.width < 80 || rect.height < 60) continue;
    const text = (tile.innerText || tile.textContent || "").trim();
    if (!text) continue;
    const hasPrice = /\$\s*\d/.test(text);
    const hasAdd = !!tile.querySelector("button");
    if (!hasPrice && !hasAdd) continue; // navigation chrome, ads
    const id = "cp-" + runTag + "-" + nextId++;
    tile.setAttribute("%s", id);
    const heading = tile.querySelector("h1,h2,h3,[class*='title'],[class*='name']");
    const lower = text.toLowerCase();
    candidates.push({
      id: id,
      title: ((heading && heading.innerText) || text.split("\n")[0] || "").trim().slice(0, 160),
      text: text.slice(0, 600),
      href: pickHref(tile),
      imageUrl: pickImage(tile),
      priceText: (text.match(/\$\s*\d+[.,]?\d*/) || [""])[0],
      snippet: text.replace(/\s+/g, " ").slice(0, 160),
      outOfStock: stockMarkers.some((m) => lower.includes(m)),
    });
    if (candidates.length >= limit * 4) break;
  }
  __cpLog("collect: " + candidates.length + " candidates kept");
  return { candidates: candidates };`,
		helpers(p),
		jsStringArray(p.TileSelectors),
		jsStringArray(p.OutOfStockMarkers),
		jsStringArray(retailer.BlockedLinkTokens),
		limit,
		EscapeJS(term),
		CandidateAttr,
	)
}

// DismissConsent clicks any visible cookie/consent affordances. It is
// run defensively before every item and returns how many controls it
// clicked.
func DismissConsent(p *retailer.Profile) string {
	return fmt.Sprintf(`%s
  const consentSelectors = %s;
  let clicked = 0;
  for (const sel of consentSelectors) {
    for (const el of __cpDeepQueryAll(document, sel)) {
      if (__cpVisible(el)) { __cpClick(el); clicked++; break; }
    }
  }
  return clicked;`, helpers(p), jsStringArray(p.ConsentSelectors))
}

// NavigationGuard intercepts window.open and anchor clicks, refusing
// any target off the retailer's allow-list. Installed once per
// session; re-running is a no-op.
func NavigationGuard(p *retailer.Profile) string {
	return fmt.Sprintf(`%s
  if (window.__cartpilotGuard) return "installed";
  window.__cartpilotGuard = true;
  const blockedTokens = %s;
  const urlOk = (u) => {
    let abs;
    try { abs = new URL(String(u), window.location.href); } catch (e) { return false; }
    const lower = abs.href.toLowerCase();
    if (blockedTokens.some((t) => lower.includes(t))) return false;
    return __cpHostOk(abs.hostname);
  };
  const origOpen = window.open;
  window.open = function (u, ...rest) {
    if (u && !urlOk(u)) {
      __cpLog("blocked window.open to " + u);
      return null;
    }
    return origOpen ? origOpen.call(window, u, ...rest) : null;
  };
  document.addEventListener("click", (ev) => {
    const a = ev.target && ev.target.closest ? ev.target.closest("a[href]") : null;
    if (a && !urlOk(a.href)) {
      ev.preventDefault();
      ev.stopPropagation();
      __cpLog("blocked navigation to " + a.href);
    }
  }, true);
  return "installed";`, helpers(p), jsStringArray(retailer.BlockedLinkTokens))
}

// AuthProbe reports whether the page shows signed-in indicators. The
// result is a plain boolean; a null result means the probe could not
// run and is treated as unknown by the caller.
func AuthProbe(p *retailer.Profile) string {
	return fmt.Sprintf(`%s
  const indicators = %s;
  for (const sel of indicators) {
    for (const el of __cpDeepQueryAll(document, sel)) {
      if (__cpVisible(el)) return true;
    }
  }
  const bodyText = (document.body && document.body.innerText || "").toLowerCase();
  return bodyText.includes("log out") || bodyText.includes("sign out");`,
		helpers(p), jsStringArray(p.AuthIndicators))
}

// CurrentLocation returns the page URL as seen from inside the page.
func CurrentLocation() string {
	return `  return window.location.href;`
}

// AddToCart locates the add affordance for the tagged candidate and
// activates it, falling through a chain of increasingly desperate
// strategies. It never mutates the DOM on an off-allow-list host.
// Stages that require navigating to a product detail page return
// navigated=true so the orchestrator can re-run an inline add after
// the load settles.
func AddToCart(p *retailer.Profile, candidateID, query string, qty int) string {
	tokens := queryTokens(query)
	// the re-scoring stages count overlapping tokens; a single-token
	// query can only ever overlap once
	minHits := 2
	if len(tokens) < 2 {
		minHits = 1
	}
	return fmt.Sprintf(`%s
  if (!__cpHostOk(window.location.hostname)) {
    return { success: false, stage: "guard", message: "blocked host " + window.location.hostname };
  }
  const candidateId = "%s";
  const queryTokens = %s;
  const qty = %d;
  const minHits = %d;
  const addSelectors = %s;
  const increaseSelectors = %s;

  const scoreText = (text) => {
    const lower = String(text || "").toLowerCase();
    let hits = 0;
    for (const token of queryTokens) {
      if (lower.includes(token)) hits++;
    }
    return hits;
  };
  const addWithin = (scope) => {
    if (!scope) return null;
    for (const sel of addSelectors) {
      for (const el of __cpDeepQueryAll(scope, sel)) {
        if (__cpVisible(el)) return el;
      }
    }
    return null;
  };
  const cartSignature = () => {
    let sig = "";
    for (const el of document.querySelectorAll("[class*='cart'],[class*='trolley'],[data-testid*='cart']")) {
      sig += (el.innerText || "").slice(0, 40) + "|";
      if (sig.length > 400) break;
    }
    return sig;
  };
  const verifyAdded = async (button, beforeSig, beforeLabel) => {
    for (let i = 0; i < 12; i++) {
      await __cpSleep(250);
      if (button && __cpVisible(button) && (button.innerText || "") !== beforeLabel) return "button label changed";
      if (button && button.parentElement && addWithinIncrease(button.parentElement)) return "increment control appeared";
      if (cartSignature() !== beforeSig) return "cart indicator changed";
    }
    return "";
  };
  const addWithinIncrease = (scope) => {
    for (const sel of increaseSelectors) {
      for (const el of __cpDeepQueryAll(scope, sel)) {
        if (__cpVisible(el)) return el;
      }
    }
    return null;
  };
  const applyQuantity = async (scope) => {
    // generic increase controls are a heuristic, not a contract;
    // report how many increments actually happened
    let applied = 0;
    for (let i = 1; i < qty; i++) {
      const inc = addWithinIncrease(scope || document);
      if (!inc) break;
      __cpClick(inc);
      applied++;
      await __cpSleep(400);
    }
    return applied;
  };
  const clickAndVerify = async (button, scope, stage) => {
    const beforeSig = cartSignature();
    const beforeLabel = button.innerText || "";
    __cpClick(button);
    const evidence = await verifyAdded(button, beforeSig, beforeLabel);
    if (!evidence) {
      return { success: false, stage: stage, message: "no observable side effect after clicking add control" };
    }
    const increments = await applyQuantity(scope);
    return { success: true, stage: stage, message: evidence, increments: increments };
  };

  // stage 1: direct button inside the tagged candidate or its ancestry
  let tile = document.querySelector('[%s="' + candidateId + '"]');
  let hops = 0;
  let scope = tile;
  while (scope && hops < 6) {
    const button = addWithin(scope);
    if (button) {
      __cpLog("add: direct button at ancestry hop " + hops);
      return await clickAndVerify(button, scope, "direct");
    }
    scope = scope.parentElement;
    hops++;
  }

  // stage 2: re-score visible product tile anchors against the query
  let bestAnchor = null;
  let bestAnchorScore = minHits - 1;
  for (const a of document.querySelectorAll("a[href]")) {
    if (!__cpVisible(a)) continue;
    const container = a.closest("article,section,li,div") || a;
    const score = scoreText(container.innerText);
    if (score > bestAnchorScore) { bestAnchorScore = score; bestAnchor = a; }
  }
  if (bestAnchor) {
    const container = bestAnchor.closest("article,section,li,div") || bestAnchor;
    const button = addWithin(container);
    if (button) {
      __cpLog("add: anchor fallback, overlap " + bestAnchorScore);
      return await clickAndVerify(button, container, "anchor");
    }
    let host = "";
    try { host = new URL(bestAnchor.href, window.location.href).hostname; } catch (e) {}
    if (__cpHostOk(host)) {
      __cpLog("add: navigating to candidate detail page");
      window.location.assign(bestAnchor.href);
      return { success: false, stage: "anchor", navigated: true, message: "navigated to product detail page" };
    }
  }

  // stage 3: bounded deep text scan
  const walker = document.createTreeWalker(document.body, NodeFilter.SHOW_ELEMENT);
  let visited = 0;
  let bestNode = null;
  let bestNodeScore = minHits - 1;
  while (walker.nextNode() && visited++ < 5000) {
    const node = walker.currentNode;
    if (node.childElementCount > 4) continue;
    const score = scoreText(node.innerText);
    if (score > bestNodeScore) { bestNodeScore = score; bestNode = node; }
  }
  if (bestNode) {
    let up = bestNode;
    for (let i = 0; up && i < 6; i++) {
      const button = addWithin(up);
      if (button) {
        __cpLog("add: deep scan hit, overlap " + bestNodeScore);
        return await clickAndVerify(button, up, "deep-scan");
      }
      up = up.parentElement;
    }
  }

  // stage 4: first plausible product detail anchor
  for (const a of document.querySelectorAll("a[href*='product'],a[href*='/p/']")) {
    if (!__cpVisible(a)) continue;
    let host = "";
    try { host = new URL(a.href, window.location.href).hostname; } catch (e) { continue; }
    if (!__cpHostOk(host)) continue;
    __cpLog("add: final-resort navigation to detail page");
    window.location.assign(a.href);
    return { success: false, stage: "pdp", navigated: true, message: "navigated to first plausible detail page" };
  }

  // stage 5: any visible add control on the page
  const globalButton = addWithin(document);
  if (globalButton) {
    __cpLog("add: page-level fallback button");
    return await clickAndVerify(globalButton, null, "global");
  }

  return { success: false, stage: "exhausted", message: "no add-to-cart affordance found for candidate " + candidateId };`,
		helpers(p),
		EscapeJS(candidateID),
		jsStringArray(tokens),
		qty,
		minHits,
		jsStringArray(p.AddButtonSelectors),
		jsStringArray(p.IncreaseSelectors),
		CandidateAttr,
	)
}

// InlineAdd adds the product on an already-loaded product detail page:
// selector list, then a variant-picker dialog, then a form submit as
// the last resort. Used by the URL-plan variant and after add-to-cart
// stages that navigated away from the listing.
func InlineAdd(p *retailer.Profile, qty int) string {
	return fmt.Sprintf(`%s
  if (!__cpHostOk(window.location.hostname)) {
    return { success: false, stage: "guard", message: "blocked host " + window.location.hostname };
  }
  const qty = %d;
  const addSelectors = %s;
  const increaseSelectors = %s;

  const firstVisible = (selectors, scope) => {
    for (const sel of selectors) {
      for (const el of __cpDeepQueryAll(scope || document, sel)) {
        if (__cpVisible(el)) return el;
      }
    }
    return null;
  };
  const applyQuantity = async () => {
    let applied = 0;
    for (let i = 1; i < qty; i++) {
      const inc = firstVisible(increaseSelectors);
      if (!inc) break;
      __cpClick(inc);
      applied++;
      await __cpSleep(400);
    }
    return applied;
  };

  let button = firstVisible(addSelectors);
  if (!button) {
    // a variant picker may be hiding the add control behind a dialog
    const dialog = document.querySelector("[role='dialog'],[class*='variant'],[class*='modal']");
    if (dialog && __cpVisible(dialog)) {
      const option = dialog.querySelector("button,[role='option']");
      if (option) {
        __cpClick(option);
        await __cpSleep(500);
        button = firstVisible(addSelectors);
      }
    }
  }
  if (button) {
    __cpClick(button);
    await __cpSleep(800);
    const increments = await applyQuantity();
    return { success: true, stage: "inline", increments: increments };
  }

  const form = document.querySelector("form[action*='cart'],form[action*='trolley']");
  if (form) {
    __cpLog("inline add: falling back to form submit");
    try { form.submit(); } catch (e) {
      return { success: false, stage: "form", message: "form submit failed: " + e };
    }
    return { success: true, stage: "form", increments: 0 };
  }

  return { success: false, stage: "exhausted", message: "no add control on detail page" };`,
		helpers(p), qty, jsStringArray(p.AddButtonSelectors), jsStringArray(p.IncreaseSelectors))
}

// RecorderListener captures clicks, touches and inputs with their
// coordinates and timestamps and posts them back through the message
// channel. Idempotent per page.
func RecorderListener() string {
	return fmt.Sprintf(`
  if (window.__cartpilotRecorder) return "recording";
  window.__cartpilotRecorder = true;
  const post = (action) => {
    try { window.%s(JSON.stringify(action)); } catch (e) {}
  };
  document.addEventListener("click", (ev) => {
    post({ type: "tap", x: ev.clientX, y: ev.clientY, timestamp: Date.now() });
  }, true);
  document.addEventListener("touchstart", (ev) => {
    const t = ev.touches && ev.touches[0];
    if (t) post({ type: "tap", x: t.clientX, y: t.clientY, timestamp: Date.now() });
  }, true);
  document.addEventListener("input", (ev) => {
    const el = ev.target;
    if (!el || !el.getBoundingClientRect) return;
    const rect = el.getBoundingClientRect();
    post({
      type: "input",
      x: rect.left + rect.width / 2,
      y: rect.top + rect.height / 2,
      timestamp: Date.now(),
      value: String(el.value || ""),
    });
  }, true);
  document.addEventListener("scroll", () => {
    post({ type: "scroll", x: window.scrollX, y: window.scrollY, timestamp: Date.now() });
  }, true);
  return "recording";`, page.BindingName)
}

// ReplayInput hit-tests the recorded coordinates and sets the found
// element's value, dispatching input/change events.
func ReplayInput(x, y float64, value string) string {
	return fmt.Sprintf(`
  const el = document.elementFromPoint(%s, %s);
  if (!el) return { ok: false, message: "no element at point" };
  if (el.focus) el.focus();
  el.value = "%s";
  el.dispatchEvent(new Event("input", { bubbles: true }));
  el.dispatchEvent(new Event("change", { bubbles: true }));
  return { ok: true };`, jsNumber(x), jsNumber(y), EscapeJS(value))
}

// ReplayTap clicks whatever sits at the recorded coordinates, falling
// back to a dispatched MouseEvent when direct click fails.
func ReplayTap(x, y float64) string {
	return fmt.Sprintf(`
  const el = document.elementFromPoint(%s, %s);
  if (!el) return { ok: false, message: "no element at point" };
  try { el.click(); return { ok: true, via: "click" }; } catch (e) {}
  el.dispatchEvent(new MouseEvent("click", { bubbles: true, cancelable: true, clientX: %s, clientY: %s }));
  return { ok: true, via: "dispatch" };`, jsNumber(x), jsNumber(y), jsNumber(x), jsNumber(y))
}

// ReplayScroll restores the recorded scroll position.
func ReplayScroll(x, y float64) string {
	return fmt.Sprintf(`
  window.scrollTo(%s, %s);
  return { ok: true };`, jsNumber(x), jsNumber(y))
}

func jsNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
