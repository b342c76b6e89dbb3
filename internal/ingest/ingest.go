// Package ingest decodes uploaded CSV, Excel or JSON files into typed entity records.
// Cells that cannot be coerced are left empty and the field is marked
// malformed on the record so the validators can report it.
package ingest

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"alchemist/internal/domain"
)

var ErrUnsupportedFormat = errors.New("unsupported file format; upload CSV, XLSX or JSON files")

type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatXLSX Format = "xlsx"
)

// DetectFormat picks the decoder from the file extension.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, nil
	case ".json":
		return FormatJSON, nil
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}
}

// Row is one raw record keyed by its original header.
type Row map[string]string

// ReadRows decodes r as a header-row CSV, the first sheet of a workbook, or a
// JSON array of objects.
func ReadRows(r io.Reader, format Format) ([]Row, error) {
	switch format {
	case FormatCSV:
		return readCSV(r)
	case FormatJSON:
		return readJSON(r)
	case FormatXLSX:
		return readXLSX(r)
	default:
		return nil, ErrUnsupportedFormat
	}
}

func readCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err == io.EOF {
		return []Row{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("csv header: %w", err)
	}
	var records [][]string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv parsing error: %w", err)
		}
		records = append(records, rec)
	}
	return tableRows(header, records), nil
}

func readXLSX(r io.Reader) ([]Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("xlsx parsing error: %w", err)
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return []Row{}, nil
	}
	table, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("xlsx sheet %s: %w", sheets[0], err)
	}
	if len(table) == 0 {
		return []Row{}, nil
	}
	return tableRows(table[0], table[1:]), nil
}

// tableRows keys each record by the header. Blank records are skipped and
// cells beyond the header are dropped.
func tableRows(header []string, records [][]string) []Row {
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	rows := []Row{}
	for _, rec := range records {
		row := Row{}
		empty := true
		for i, cell := range rec {
			if i >= len(header) {
				break
			}
			cell = strings.TrimSpace(cell)
			if cell != "" {
				empty = false
			}
			row[header[i]] = cell
		}
		if !empty {
			rows = append(rows, row)
		}
	}
	return rows
}

func readJSON(r io.Reader) ([]Row, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var raw []map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("json parsing error: %w", err)
	}
	return FromObjects(raw)
}

// FromObjects flattens decoded JSON objects into rows. Nested arrays and
// objects are kept as JSON text so list cells can be re-parsed.
func FromObjects(objs []map[string]any) ([]Row, error) {
	rows := make([]Row, 0, len(objs))
	for _, obj := range objs {
		row := Row{}
		for k, v := range obj {
			if v == nil {
				continue
			}
			switch val := v.(type) {
			case string:
				row[k] = strings.TrimSpace(val)
			case json.Number:
				row[k] = val.String()
			case float64:
				row[k] = strconv.FormatFloat(val, 'f', -1, 64)
			case bool:
				row[k] = strconv.FormatBool(val)
			default:
				b, err := json.Marshal(val)
				if err != nil {
					return nil, fmt.Errorf("json field %s: %w", k, err)
				}
				row[k] = string(b)
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Parser maps raw rows to entities.
type Parser struct {
	// FillMissingIDs assigns "<kind>-<n>" to rows without an id. Off by default
	// so the missing-id checks can fire.
	FillMissingIDs bool
}

func (p Parser) fillID(id string, kind domain.EntityType, index int) string {
	if id == "" && p.FillMissingIDs {
		return fmt.Sprintf("%s-%d", kind, index+1)
	}
	return id
}

func (p Parser) Clients(rows []Row) []domain.Client {
	return p.clients(rows, 0)
}

func (p Parser) clients(rows []Row, offset int) []domain.Client {
	out := make([]domain.Client, 0, len(rows))
	for n, row := range rows {
		i := n + offset
		c := cells{row: row}
		client := domain.Client{
			ID:             p.fillID(c.str("id", "clientid"), domain.EntityClient, i),
			Name:           c.str("name", "clientname"),
			Email:          c.str("email", "clientemail"),
			Phone:          c.str("phone", "clientphone"),
			Address:        c.str("address", "clientaddress"),
			GroupTag:       c.str("grouptag", "group"),
			AttributesJSON: c.str("attributesjson", "attributes"),
		}
		client.Priority = c.integer(&client.Coercion, "priority", "priority", "prioritylevel")
		client.RequestedTaskIDs = c.list(&client.Coercion, "requestedTaskIds", "requestedtaskids", "requestedtasks")
		out = append(out, client)
	}
	return out
}

func (p Parser) Workers(rows []Row) []domain.Worker {
	return p.workers(rows, 0)
}

func (p Parser) workers(rows []Row, offset int) []domain.Worker {
	out := make([]domain.Worker, 0, len(rows))
	for n, row := range rows {
		i := n + offset
		c := cells{row: row}
		w := domain.Worker{
			ID:             p.fillID(c.str("id", "workerid"), domain.EntityWorker, i),
			Name:           c.str("name", "workername"),
			Email:          c.str("email", "workeremail"),
			WorkerGroup:    c.str("workergroup", "group"),
			AttributesJSON: c.str("attributesjson", "attributes"),
		}
		w.Skills = c.list(&w.Coercion, "skills", "skills", "workerskills")
		w.AvailableSlots = c.phases(&w.Coercion, "availableSlots", "availableslots", "slots")
		w.MaxLoadPerPhase = c.integer(&w.Coercion, "maxLoadPerPhase", "maxloadperphase", "maxload")
		w.QualificationLevel = c.integer(&w.Coercion, "qualificationLevel", "qualificationlevel")
		out = append(out, w)
	}
	return out
}

func (p Parser) Tasks(rows []Row) []domain.Task {
	return p.tasks(rows, 0)
}

func (p Parser) tasks(rows []Row, offset int) []domain.Task {
	out := make([]domain.Task, 0, len(rows))
	for n, row := range rows {
		i := n + offset
		c := cells{row: row}
		t := domain.Task{
			ID:             p.fillID(c.str("id", "taskid"), domain.EntityTask, i),
			Name:           c.str("name", "taskname"),
			Category:       c.str("category"),
			ClientID:       c.str("clientid"),
			AttributesJSON: c.str("attributesjson", "attributes"),
		}
		t.Duration = c.integer(&t.Coercion, "duration", "duration")
		t.RequiredSkills = c.list(&t.Coercion, "requiredSkills", "requiredskills", "skills")
		t.PreferredPhases = c.phases(&t.Coercion, "preferredPhases", "preferredphases", "phases")
		t.MaxConcurrent = c.integer(&t.Coercion, "maxConcurrent", "maxconcurrent")
		t.Dependencies = c.list(&t.Coercion, "dependencies", "dependencies", "dependson")
		t.Priority = c.integer(&t.Coercion, "priority", "priority", "prioritylevel")
		t.EstimatedHours = c.float(&t.Coercion, "estimatedHours", "estimatedhours")
		out = append(out, t)
	}
	return out
}

// Collection parses rows as the collection named by et and returns it in an
// otherwise empty snapshot.
func (p Parser) Collection(et domain.EntityType, rows []Row) (domain.Snapshot, error) {
	var snap domain.Snapshot
	switch et {
	case domain.EntityClient:
		snap.Clients = p.Clients(rows)
	case domain.EntityWorker:
		snap.Workers = p.Workers(rows)
	case domain.EntityTask:
		snap.Tasks = p.Tasks(rows)
	default:
		return snap, fmt.Errorf("unknown entity type %q", et)
	}
	return snap, nil
}

// RecordAt parses row as the record at position index of collection et, so
// a filled-in id matches the one a full parse would assign.
func (p Parser) RecordAt(et domain.EntityType, row Row, index int) (domain.Snapshot, error) {
	var snap domain.Snapshot
	rows := []Row{row}
	switch et {
	case domain.EntityClient:
		snap.Clients = p.clients(rows, index)
	case domain.EntityWorker:
		snap.Workers = p.workers(rows, index)
	case domain.EntityTask:
		snap.Tasks = p.tasks(rows, index)
	default:
		return snap, fmt.Errorf("unknown entity type %q", et)
	}
	return snap, nil
}

// Files names the optional input file of each collection.
type Files struct {
	Clients string
	Workers string
	Tasks   string
}

// LoadSnapshot reads every named file. Empty paths leave that collection empty.
func (p Parser) LoadSnapshot(files Files) (domain.Snapshot, error) {
	snap := domain.Snapshot{Clients: []domain.Client{}, Workers: []domain.Worker{}, Tasks: []domain.Task{}}
	load := func(path string) ([]Row, error) {
		if path == "" {
			return nil, nil
		}
		return ReadFile(path)
	}
	rows, err := load(files.Clients)
	if err != nil {
		return snap, err
	}
	snap.Clients = append(snap.Clients, p.Clients(rows)...)
	if rows, err = load(files.Workers); err != nil {
		return snap, err
	}
	snap.Workers = append(snap.Workers, p.Workers(rows)...)
	if rows, err = load(files.Tasks); err != nil {
		return snap, err
	}
	snap.Tasks = append(snap.Tasks, p.Tasks(rows)...)
	return snap, nil
}

// ReadFile decodes path according to its extension.
func ReadFile(path string) ([]Row, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	rows, err := ReadRows(bytes.NewReader(data), format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rows, nil
}
