package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"

	"ArticlesConsolidator/internal/domain"
	"ArticlesConsolidator/internal/progress"
	"ArticlesConsolidator/internal/usecase"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiBlue   = "\x1b[34m"
	clearLine  = "\r\x1b[2K"
	dateLayout = "2006-01-02"
)

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func shouldColorize(w io.Writer) bool {
	return isTerminal(w)
}

// progressRenderer prints session progress: a single rewritten line on a terminal,
// one line per finished step otherwise.
type progressRenderer struct {
	usecase.NopObserver

	mu          sync.Mutex
	out         io.Writer
	interactive bool
	reported    map[string]bool
	dirty       bool
}

func newProgressRenderer(out io.Writer) *progressRenderer {
	return &progressRenderer{out: out, interactive: isTerminal(out), reported: make(map[string]bool)}
}

func (p *progressRenderer) ProgressUpdated(snapshot *progress.Snapshot) {
	if snapshot == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.interactive {
		fmt.Fprintf(p.out, "%s[%3d%%] %s", clearLine, snapshot.OverallProgress, snapshot.CurrentMessage)
		p.dirty = true
		return
	}
	for _, step := range snapshot.Steps {
		if !step.Status.Terminal() || p.reported[step.ID] {
			continue
		}
		p.reported[step.ID] = true
		fmt.Fprintf(p.out, "%-24s %-9s %s\n", step.Title, step.Status, step.Message)
	}
}

func (p *progressRenderer) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dirty {
		fmt.Fprint(p.out, clearLine)
		p.dirty = false
	}
}

func renderResult(res usecase.Result, colorize bool) string {
	var b strings.Builder
	heading := func(s string) {
		if colorize {
			s = ansiBlue + s + ansiReset
		}
		b.WriteString(s + "\n")
	}

	if len(res.Articles) == 0 {
		if !res.TimeRangeHasArticles {
			b.WriteString("No articles in the selected time range.\n")
		} else {
			b.WriteString("No relevant articles found.\n")
		}
		return b.String()
	}

	if len(res.Clusters) == 0 {
		heading(fmt.Sprintf("%d articles", len(res.Articles)))
		b.WriteString(articleTable(res.Articles))
		b.WriteString("\n")
	}
	for _, cluster := range res.Clusters {
		heading(fmt.Sprintf("%s (%d)", cluster.Title, len(cluster.Articles)))
		if cluster.Description != "" {
			b.WriteString(cluster.Description + "\n")
		}
		b.WriteString(articleTable(cluster.Articles))
		b.WriteString("\n\n")
	}

	summary := fmt.Sprintf("%d API calls, %d tokens (%d prompt, %d completion)",
		res.TokenStats.Requests, res.TokenStats.TotalTokens, res.TokenStats.PromptTokens, res.TokenStats.CompletionTokens)
	if colorize {
		color := ansiGreen
		if res.Warning != nil {
			color = ansiRed
		}
		summary = color + summary + ansiReset
	}
	b.WriteString(summary + "\n")
	return b.String()
}

func articleTable(articles []domain.Article) string {
	rows := make([][]string, 0, len(articles))
	for _, a := range articles {
		rows = append(rows, []string{a.PublishedAt.Format(dateLayout), a.Title, a.URL})
	}
	return renderTable([]string{"Date", "Title", "URL"}, rows, nil)
}
