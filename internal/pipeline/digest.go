package pipeline

import (
	"fmt"
	"strings"
)

// RenderDigest turns a finished run into the markdown block the dashboard
// shows: one bullet per new notice with its summary, then a section listing
// anything that went wrong.
func RenderDigest(run *Run) string {
	var b strings.Builder
	b.WriteString("# OA 通知摘要\n\n")

	if run.Outcome == OutcomeFatal {
		fmt.Fprintf(&b, "本次运行失败（%s）。\n", run.FatalKind)
		return b.String()
	}

	if len(run.Notices) == 0 {
		b.WriteString("没有新的通知。\n")
	} else {
		for _, rec := range run.Notices {
			line := rec.Summary
			if line == "" {
				line = "（摘要暂缺）"
			}
			fmt.Fprintf(&b, "- **%s**（%s / %s）：%s\n",
				rec.Title, rec.Department, rec.PublishedAt.Format("2006-01-02"), line)
		}
	}

	if len(run.Errors) > 0 {
		b.WriteString("\n## 处理异常\n")
		for _, e := range run.Errors {
			fmt.Fprintf(&b, "- %s：%s\n", e.Ref, e.Kind)
		}
	}

	return b.String()
}
