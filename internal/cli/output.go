package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"
	"text/tabwriter"
	"time"
)

// Output печатает ответы API: таблицы для списков, карточки для
// отдельных worker'ов и operations, JSON при --json.
type Output struct {
	jsonMode bool
	w        io.Writer // данные
	errW     io.Writer // сообщения
}

// NewOutput создаёт Output поверх stdout/stderr.
func NewOutput(jsonMode bool) *Output {
	return &Output{
		jsonMode: jsonMode,
		w:        os.Stdout,
		errW:     os.Stderr,
	}
}

// Field — строка карточки.
type Field struct {
	Name  string
	Value string
}

// Print выводит список: таблицу или JSON.
func (o *Output) Print(headers []string, rows [][]string, jsonData any) {
	if o.jsonMode {
		o.JSON(jsonData)
		return
	}
	o.Table(headers, rows)
}

// Details выводит одну запись карточкой "NAME: value" или JSON.
func (o *Output) Details(fields []Field, jsonData any) {
	if o.jsonMode {
		o.JSON(jsonData)
		return
	}

	tw := tabwriter.NewWriter(o.w, 0, 0, 1, ' ', 0)
	for _, f := range fields {
		fmt.Fprintf(tw, "%s:\t%s\n", f.Name, dash(f.Value))
	}
	tw.Flush()
}

// Table выводит таблицу с подчёркнутыми заголовками.
func (o *Output) Table(headers []string, rows [][]string) {
	tw := tabwriter.NewWriter(o.w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, strings.Join(headers, "\t"))

	dashes := make([]string, len(headers))
	for i, h := range headers {
		dashes[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintln(tw, strings.Join(dashes, "\t"))

	for _, row := range rows {
		cells := make([]string, len(row))
		for i, c := range row {
			cells[i] = dash(c)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}

	tw.Flush()
}

// JSON выводит данные с отступами.
func (o *Output) JSON(v any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

// Success выводит сообщение об успехе в stderr.
func (o *Output) Success(msg string) {
	fmt.Fprintln(o.errW, msg)
}

// Error выводит сообщение об ошибке в stderr.
func (o *Output) Error(msg string) {
	fmt.Fprintln(o.errW, "Error: "+msg)
}

// --- Formatting helpers ---

// dash заменяет пустое значение на "-", чтобы не ломать колонки.
func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// formatProperties печатает properties как "a=1,b=2" в алфавитном порядке.
func formatProperties(props map[string]string) string {
	parts := make([]string, 0, len(props))
	for _, name := range slices.Sorted(maps.Keys(props)) {
		parts = append(parts, name+"="+props[name])
	}
	return strings.Join(parts, ",")
}

// formatWorkerTimestamp печатает WorkerTimestamp (секунды Unix) в UTC.
// 0 — значение не задано.
func formatWorkerTimestamp(ts uint64) string {
	if ts == 0 {
		return ""
	}
	return time.Unix(int64(ts), 0).UTC().Format(time.RFC3339)
}

// formatStage переводит стадию из API в короткую форму для таблиц:
// COMPLETED_SUCCESS → success, QUEUED → queued.
func formatStage(stage string) string {
	s := strings.ToLower(stage)
	return strings.TrimPrefix(s, "completed_")
}
