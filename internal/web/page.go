package web

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/a-h/templ"
)

// statusPage renders the read-only server overview.
func statusPage(st Status, now time.Time) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		e := templ.EscapeString[string]

		state := "running"
		if !st.Running {
			state = "shutting down"
		}

		b.WriteString("<!doctype html><html lang=\"en\"><head><meta charset=\"utf-8\">")
		b.WriteString("<title>erpserver</title>")
		b.WriteString("<style>body{font-family:sans-serif;margin:2rem}td,th{padding:.2rem .8rem;text-align:left}</style>")
		b.WriteString("</head><body>")
		fmt.Fprintf(&b, "<h1>erpserver %s</h1>", e(st.Version))
		fmt.Fprintf(&b, "<p>State: <strong>%s</strong>", e(state))
		if !st.Started.IsZero() {
			fmt.Fprintf(&b, " &middot; up %s", e(uptime(now.Sub(st.Started))))
		}
		fmt.Fprintf(&b, " &middot; boot %s</p>", e(st.BootID))

		b.WriteString("<h2>Databases</h2><ul>")
		for _, db := range st.Databases {
			fmt.Fprintf(&b, "<li>%s</li>", e(db))
		}
		b.WriteString("</ul>")

		b.WriteString("<h2>Services</h2><ul>")
		for _, svc := range st.Services {
			fmt.Fprintf(&b, "<li>%s</li>", e(svc))
		}
		b.WriteString("</ul>")

		b.WriteString("<h2>Jobs</h2><table><tr><th>Database</th><th>Job</th><th>Schedule</th><th>Next run</th></tr>")
		for _, j := range st.Jobs {
			fmt.Fprintf(&b, "<tr><td>%s</td><td>%s</td><td>%s</td><td>%s</td></tr>",
				e(j.Database), e(j.Name), e(j.Schedule), e(j.Next.Format(time.RFC3339)))
		}
		b.WriteString("</table>")

		b.WriteString("<h2>Workers</h2><table><tr><th>Name</th><th>Goroutine</th><th>Kind</th></tr>")
		for _, wk := range st.Workers {
			kind := "non-daemon"
			if wk.Daemon {
				kind = "daemon"
			}
			fmt.Fprintf(&b, "<tr><td>%s</td><td>%d</td><td>%s</td></tr>", e(wk.Name), wk.GoroutineID, kind)
		}
		b.WriteString("</table></body></html>")

		_, err := io.WriteString(w, b.String())
		return err
	})
}
