package proxy

import (
	"bytes"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"locatorcheck/internal/delivery"
	"locatorcheck/internal/script"
)

// ListenerAttr 注入的消息监听脚本标记
const ListenerAttr = "data-locatorcheck-listener"

const listenerTemplate = `(function () {
  if (window.__LISTENER_FLAG__) { return; }
  window.__LISTENER_FLAG__ = true;
  window.addEventListener("message", function (e) {
    if (e.source !== window.parent) { return; }
    var d = e.data;
    if (typeof d === "string") {
      try { d = JSON.parse(d); } catch (err) { return; }
    }
    if (!d || d.type !== "__VERIFY_TYPE__" || typeof d.script !== "string") { return; }
    var status = "unknown";
    var error = "";
    try {
      var s = document.createElement("script");
      s.textContent = d.script;
      (document.head || document.documentElement).appendChild(s);
      if (s.parentNode) { s.parentNode.removeChild(s); }
      var r = window.__RESULT_VAR__;
      if (r && r.status) { status = r.status; }
    } catch (err) {
      status = "error";
      error = String(err);
    }
    e.source.postMessage({ type: "__ACK_TYPE__", id: d.id, status: status, error: error }, "*");
  });
})();`

// ListenerScript 协作页面中监听校验消息的脚本
func ListenerScript() string {
	return strings.NewReplacer(
		"__LISTENER_FLAG__", script.ResultVar+"Listener",
		"__VERIFY_TYPE__", delivery.MessageTypeVerify,
		"__ACK_TYPE__", delivery.MessageTypeAck,
		"__RESULT_VAR__", script.ResultVar,
	).Replace(listenerTemplate)
}

// Rewrite 改写远端页面：移除远端脚本与限制性 meta，注入 <base> 与消息监听脚本
func Rewrite(r io.Reader, baseHref string) ([]byte, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}
	strip(doc)

	head := find(doc, atom.Head)
	if head == nil {
		// html.Parse 总会补全 head，这里只是保险
		htmlNode := find(doc, atom.Html)
		head = &html.Node{Type: html.ElementNode, Data: "head", DataAtom: atom.Head}
		htmlNode.InsertBefore(head, htmlNode.FirstChild)
	}

	base := &html.Node{
		Type:     html.ElementNode,
		Data:     "base",
		DataAtom: atom.Base,
		Attr:     []html.Attribute{{Key: "href", Val: baseHref}},
	}
	head.InsertBefore(base, head.FirstChild)

	listener := &html.Node{
		Type:     html.ElementNode,
		Data:     "script",
		DataAtom: atom.Script,
		Attr:     []html.Attribute{{Key: ListenerAttr, Val: "1"}},
	}
	listener.AppendChild(&html.Node{Type: html.TextNode, Data: ListenerScript()})
	head.AppendChild(listener)

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// strip 删除远端 script、已有 base 以及 CSP/refresh meta
func strip(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if removable(c) {
			n.RemoveChild(c)
		} else {
			strip(c)
		}
		c = next
	}
}

func removable(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	switch n.DataAtom {
	case atom.Script, atom.Base:
		return true
	case atom.Meta:
		equiv := strings.ToLower(attr(n, "http-equiv"))
		return equiv == "content-security-policy" || equiv == "refresh" || equiv == "x-frame-options"
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func find(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if f := find(c, a); f != nil {
			return f
		}
	}
	return nil
}
