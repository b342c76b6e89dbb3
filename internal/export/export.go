// Package export writes the cleaned collections, business rules and
// prioritization weights in formats the ingest layer can read back.
package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"alchemist/internal/domain"
	"alchemist/internal/findings"
)

const Version = "1.0"

const (
	ClientsFile        = "cleaned_clients.csv"
	WorkersFile        = "cleaned_workers.csv"
	TasksFile          = "cleaned_tasks.csv"
	RulesFile          = "rules.json"
	PrioritizationFile = "prioritization.json"

	ClientsWorkbook = "cleaned_clients.xlsx"
	WorkersWorkbook = "cleaned_workers.xlsx"
	TasksWorkbook   = "cleaned_tasks.xlsx"

	// SheetName is the single sheet of every exported workbook.
	SheetName = "Data"
)

var ErrBlockingFindings = errors.New("export blocked by error findings")

var (
	clientHeader = []string{"ClientID", "ClientName", "Email", "Phone", "Address", "PriorityLevel", "RequestedTaskIDs", "GroupTag", "AttributesJSON"}
	workerHeader = []string{"WorkerID", "WorkerName", "Email", "Skills", "AvailableSlots", "MaxLoadPerPhase", "WorkerGroup", "QualificationLevel", "AttributesJSON"}
	taskHeader   = []string{"TaskID", "TaskName", "Category", "Duration", "RequiredSkills", "PreferredPhases", "MaxConcurrent", "Dependencies", "ClientID", "Priority", "EstimatedHours", "AttributesJSON"}
)

// Exporter renders export artifacts. Timestamps in the JSON envelopes come
// from Now. With Excel set, WriteDir writes the collections as workbooks
// instead of CSV files.
type Exporter struct {
	Now   func() time.Time
	Excel bool
}

func (x Exporter) now() time.Time {
	if x.Now == nil {
		return time.Now().UTC()
	}
	return x.Now().UTC()
}

// Table is one collection laid out as a header row plus records.
type Table struct {
	Header []string
	Rows   [][]string
}

func ClientTable(clients []domain.Client) Table {
	rows := make([][]string, 0, len(clients))
	for _, c := range clients {
		rows = append(rows, []string{
			c.ID, c.Name, c.Email, c.Phone, c.Address,
			intCell(c.Priority), listCell(c.RequestedTaskIDs), c.GroupTag, c.AttributesJSON,
		})
	}
	return Table{Header: clientHeader, Rows: rows}
}

func WorkerTable(workers []domain.Worker) Table {
	rows := make([][]string, 0, len(workers))
	for _, wk := range workers {
		rows = append(rows, []string{
			wk.ID, wk.Name, wk.Email, listCell(wk.Skills), intsCell(wk.AvailableSlots),
			intCell(wk.MaxLoadPerPhase), wk.WorkerGroup, intCell(wk.QualificationLevel), wk.AttributesJSON,
		})
	}
	return Table{Header: workerHeader, Rows: rows}
}

func TaskTable(tasks []domain.Task) Table {
	rows := make([][]string, 0, len(tasks))
	for _, t := range tasks {
		hours := ""
		if t.EstimatedHours != nil {
			hours = strconv.FormatFloat(*t.EstimatedHours, 'f', -1, 64)
		}
		rows = append(rows, []string{
			t.ID, t.Name, t.Category, intCell(t.Duration), listCell(t.RequiredSkills),
			intsCell(t.PreferredPhases), intCell(t.MaxConcurrent), listCell(t.Dependencies),
			t.ClientID, intCell(t.Priority), hours, t.AttributesJSON,
		})
	}
	return Table{Header: taskHeader, Rows: rows}
}

func (x Exporter) WriteClients(w io.Writer, clients []domain.Client) error {
	return ClientTable(clients).WriteCSV(w)
}

func (x Exporter) WriteWorkers(w io.Writer, workers []domain.Worker) error {
	return WorkerTable(workers).WriteCSV(w)
}

func (x Exporter) WriteTasks(w io.Writer, tasks []domain.Task) error {
	return TaskTable(tasks).WriteCSV(w)
}

func (t Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return err
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return err
	}
	return cw.Error()
}

// WriteXLSX writes the table as a single-sheet workbook. Every cell is
// stored as text so ids like "007" survive.
func (t Table) WriteXLSX(w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return err
	}
	for i, rec := range append([][]string{t.Header}, t.Rows...) {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		vals := make([]any, len(rec))
		for j, v := range rec {
			vals[j] = v
		}
		if err := f.SetSheetRow(SheetName, cell, &vals); err != nil {
			return fmt.Errorf("sheet row %d: %w", i+1, err)
		}
	}
	return f.Write(w)
}

type rulesEnvelope struct {
	Version   string                `json:"version"`
	Timestamp string                `json:"timestamp"`
	Rules     []domain.BusinessRule `json:"rules"`
}

type weightsEnvelope struct {
	Version   string                       `json:"version"`
	Timestamp string                       `json:"timestamp"`
	Weights   domain.PrioritizationWeights `json:"weights"`
}

func (x Exporter) WriteRules(w io.Writer, list []domain.BusinessRule) error {
	if list == nil {
		list = []domain.BusinessRule{}
	}
	return writeJSON(w, rulesEnvelope{Version: Version, Timestamp: x.now().Format(time.RFC3339), Rules: list})
}

func (x Exporter) WriteWeights(w io.Writer, weights domain.PrioritizationWeights) error {
	return writeJSON(w, weightsEnvelope{Version: Version, Timestamp: x.now().Format(time.RFC3339), Weights: weights})
}

// Bundle is everything written by WriteDir.
type Bundle struct {
	Snapshot domain.Snapshot
	Rules    []domain.BusinessRule
	Weights  domain.PrioritizationWeights
	Findings []domain.Finding
}

// WriteDir writes all five artifacts into dir and returns their paths. It
// refuses with ErrBlockingFindings while b.Findings holds an error unless
// force is set.
func (x Exporter) WriteDir(dir string, b Bundle, force bool) ([]string, error) {
	if !force && findings.HasBlocking(b.Findings) {
		c := findings.Count(b.Findings)
		return nil, fmt.Errorf("%w: %d errors", ErrBlockingFindings, c.Errors)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}
	collection := func(t Table) func(io.Writer) error {
		if x.Excel {
			return t.WriteXLSX
		}
		return t.WriteCSV
	}
	names := [3]string{ClientsFile, WorkersFile, TasksFile}
	if x.Excel {
		names = [3]string{ClientsWorkbook, WorkersWorkbook, TasksWorkbook}
	}
	steps := []struct {
		name  string
		write func(io.Writer) error
	}{
		{names[0], collection(ClientTable(b.Snapshot.Clients))},
		{names[1], collection(WorkerTable(b.Snapshot.Workers))},
		{names[2], collection(TaskTable(b.Snapshot.Tasks))},
		{RulesFile, func(w io.Writer) error { return x.WriteRules(w, b.Rules) }},
		{PrioritizationFile, func(w io.Writer) error { return x.WriteWeights(w, b.Weights) }},
	}
	paths := make([]string, 0, len(steps))
	for _, s := range steps {
		path := filepath.Join(dir, s.name)
		if err := writeFile(path, s.write); err != nil {
			return paths, fmt.Errorf("write %s: %w", s.name, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func intCell(p *int) string {
	if p == nil {
		return ""
	}
	return strconv.Itoa(*p)
}

func listCell(list []string) string {
	if len(list) == 0 {
		return ""
	}
	b, _ := json.Marshal(list)
	return string(b)
}

func intsCell(list []int) string {
	if len(list) == 0 {
		return ""
	}
	b, _ := json.Marshal(list)
	return string(b)
}
