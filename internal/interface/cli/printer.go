package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/jinford/kb-copilot/internal/core/ask"
	"github.com/jinford/kb-copilot/internal/core/kb"
	"github.com/jinford/kb-copilot/internal/core/trace"
)

const timeLayout = "2006-01-02 15:04:05"

var (
	okText   = color.New(color.FgGreen).SprintFunc()
	warnText = color.New(color.FgYellow).SprintFunc()
	errText  = color.New(color.FgRed).SprintFunc()
	headText = color.New(color.Bold).SprintFunc()
)

func documentStatus(s kb.DocumentStatus) string {
	switch s {
	case kb.StatusEmbedded:
		return okText(string(s))
	case kb.StatusFailed:
		return errText(string(s))
	default:
		return warnText(string(s))
	}
}

func runStatus(s trace.RunStatus) string {
	switch s {
	case trace.RunStatusSuccess:
		return okText(string(s))
	case trace.RunStatusError:
		return errText(string(s))
	default:
		return warnText(string(s))
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(timeLayout)
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

func printUploadResult(w io.Writer, res *kb.UploadResult) {
	if res.IdempotentReplay {
		fmt.Fprintf(w, "%s 登録済みの文書を返しました\n", warnText("="))
	} else {
		fmt.Fprintf(w, "%s 文書を登録しました\n", okText("✓"))
	}
	fmt.Fprintf(w, "  ID:   %s\n", res.DocumentID)
	fmt.Fprintf(w, "  状態: %s\n", documentStatus(res.Status))
}

func printDocuments(w io.Writer, docs []*kb.Document) {
	if len(docs) == 0 {
		fmt.Fprintln(w, "文書はありません")
		return
	}

	table := tablewriter.NewWriter(w)
	table.Header("ID", "タイトル", "ソース", "状態", "チャンク数", "更新日時")
	for _, d := range docs {
		table.Append(
			d.ID.String(),
			truncate(d.Title, 40),
			d.Source,
			documentStatus(d.Status),
			strconv.Itoa(d.ChunkCount),
			formatTime(d.UpdatedAt),
		)
	}
	table.Render()
}

func printDocument(w io.Writer, d *kb.DocumentDetail) {
	fmt.Fprintf(w, "%s\n", headText(d.Title))

	table := tablewriter.NewWriter(w)
	table.Header("項目", "値")
	table.Append("ID", d.ID.String())
	table.Append("ソース", d.Source)
	table.Append("ファイル名", d.Filename)
	table.Append("MIME", d.MimeType)
	table.Append("状態", documentStatus(d.Status))
	table.Append("チャンク数", strconv.Itoa(d.ChunkCount))
	table.Append("試行回数", strconv.Itoa(d.Attempts))
	if d.LastError != "" {
		table.Append("直近のエラー", errText(d.LastError))
	}
	table.Append("作成日時", formatTime(d.CreatedAt))
	table.Append("更新日時", formatTime(d.UpdatedAt))
	table.Render()

	if d.ContentPreview != "" {
		fmt.Fprintf(w, "\n%s\n%s\n", headText("--- 本文 ---"), d.ContentPreview)
	}
}

func printImportResult(w io.Writer, res *kb.ImportResult) {
	fmt.Fprintf(w, "%s %s@%s を取り込みました\n", okText("✓"), res.SourceName, shortRevision(res.Revision))

	table := tablewriter.NewWriter(w)
	table.Header("登録", "変更なし", "スキップ")
	table.Append(strconv.Itoa(res.Imported), strconv.Itoa(res.Unchanged), strconv.Itoa(res.Skipped))
	table.Render()
}

func shortRevision(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}

func printAskResult(w io.Writer, res *ask.AskResult) {
	if res.IdempotentReplay {
		fmt.Fprintf(w, "%s\n", warnText("(保存済みの応答を再生)"))
	}
	fmt.Fprintln(w, res.Answer)

	if res.Notice != "" {
		fmt.Fprintf(w, "\n%s\n", warnText(res.Notice))
	}

	if len(res.Sources) > 0 {
		fmt.Fprintf(w, "\n%s\n", headText("--- 参照ソース ---"))
		table := tablewriter.NewWriter(w)
		table.Header("#", "文書", "チャンク", "スコア", "検索", "抜粋")
		for i, s := range res.Sources {
			table.Append(
				strconv.Itoa(i+1),
				truncate(s.DocumentTitle, 30),
				strconv.Itoa(s.ChunkIndex),
				fmt.Sprintf("%.4f", s.Score),
				s.RetrieverHint,
				truncate(s.Snippet, 60),
			)
		}
		table.Render()
	}

	fmt.Fprintf(w, "\nrun=%s route=%s retriever=%s llm=%s answer_mode=%s\n",
		res.RunID, res.Route, res.RetrieverUsed, res.LLMUsed, res.AnswerMode)
}

func printRuns(w io.Writer, runs []*trace.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "実行履歴はありません")
		return
	}

	table := tablewriter.NewWriter(w)
	table.Header("ID", "質問", "モード", "状態", "トークン", "コスト(USD)", "作成日時")
	for _, r := range runs {
		table.Append(
			r.ID.String(),
			truncate(r.Question, 40),
			r.Mode,
			runStatus(r.Status),
			strconv.Itoa(r.PromptTokens+r.CompletionTokens),
			fmt.Sprintf("%.6f", r.CostUSD),
			formatTime(r.CreatedAt),
		)
	}
	table.Render()
}

func printRun(w io.Writer, r *trace.Run) {
	table := tablewriter.NewWriter(w)
	table.Header("項目", "値")
	table.Append("ID", r.ID.String())
	table.Append("質問", r.Question)
	table.Append("モード", r.Mode)
	table.Append("状態", runStatus(r.Status))
	table.Append("入力トークン", strconv.Itoa(r.PromptTokens))
	table.Append("出力トークン", strconv.Itoa(r.CompletionTokens))
	table.Append("コスト(USD)", fmt.Sprintf("%.6f", r.CostUSD))
	if r.Error != "" {
		table.Append("エラー", errText(r.Error))
	}
	table.Append("作成日時", formatTime(r.CreatedAt))
	table.Append("更新日時", formatTime(r.UpdatedAt))
	table.Render()

	if r.FinalOutput != "" {
		fmt.Fprintf(w, "\n%s\n%s\n", headText("--- 回答 ---"), r.FinalOutput)
	}
}

func printSteps(w io.Writer, steps []*trace.Step) {
	if len(steps) == 0 {
		fmt.Fprintln(w, "ステップはありません")
		return
	}

	for i, s := range steps {
		status := okText(string(s.Status))
		if s.Status == trace.StepStatusError {
			status = errText(string(s.Status))
		}
		fmt.Fprintf(w, "%s %s [%s] %s\n", headText(fmt.Sprintf("#%d", i+1)), s.Name, status, formatTime(s.CreatedAt))
		fmt.Fprintf(w, "  input:  %s\n", string(s.Input))
		fmt.Fprintf(w, "  output: %s\n", string(s.Output))
	}
}
