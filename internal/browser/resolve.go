package browser

import (
	"fmt"

	"github.com/goccy/go-json"
)

// resolveJS returns a JS expression evaluating to the array of elements
// matched by sel.
func resolveJS(sel Selector) string {
	lit := jsString(sel.Value)
	switch sel.Kind {
	case KindXPath:
		return fmt.Sprintf(`(() => {
			const r = document.evaluate(%s, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
			const out = [];
			for (let i = 0; i < r.snapshotLength; i++) out.push(r.snapshotItem(i));
			return out;
		})()`, lit)
	case KindText:
		return fmt.Sprintf(`(() => {
			const t = %s;
			return Array.from(document.querySelectorAll('body *')).filter(e =>
				e.textContent.includes(t) && !Array.from(e.children).some(c => c.textContent.includes(t)));
		})()`, lit)
	default:
		return fmt.Sprintf(`Array.from(document.querySelectorAll(%s))`, lit)
	}
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
