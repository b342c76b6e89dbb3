package validation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alchemist/internal/config"
	"alchemist/internal/domain"
	"alchemist/internal/findings"
	"alchemist/internal/ingest"
)

func newValidator() Validator {
	return New(config.Default(), findings.Stamper{
		Now:   func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) },
		NewID: func() string { return "x" },
	})
}

func messagesFor(list []domain.Finding, entityID, field string) []string {
	var out []string
	for _, f := range list {
		if f.EntityID == entityID && f.Field == field {
			out = append(out, f.Message)
		}
	}
	return out
}

func validClient(id string) domain.Client {
	return domain.Client{ID: id, Name: "Client " + id, Priority: domain.Int(3)}
}

func validWorker(id string, skills ...string) domain.Worker {
	return domain.Worker{ID: id, Name: "Worker " + id, Skills: skills, AvailableSlots: []int{1, 2}, MaxLoadPerPhase: domain.Int(2)}
}

func validTask(id string, skills ...string) domain.Task {
	return domain.Task{ID: id, Name: "Task " + id, Duration: domain.Int(1), RequiredSkills: skills, MaxConcurrent: domain.Int(1)}
}

func TestValidClientsProduceNoFindings(t *testing.T) {
	v := newValidator()
	got := v.ValidateClients([]domain.Client{validClient("C1"), validClient("C2")}, domain.Snapshot{})
	assert.Empty(t, got)
}

func TestClientChecks(t *testing.T) {
	v := newValidator()
	clients := []domain.Client{
		{Name: "no id", Priority: domain.Int(1)},
		validClient("C1"),
		{ID: "C1", Name: "dup", Priority: domain.Int(2)},
		{ID: "C2", Priority: domain.Int(9), AttributesJSON: "{bad", Email: "nope"},
	}
	clients[3].MarkMalformed("requestedTaskIds")
	got := v.ValidateClients(clients, domain.Snapshot{})

	assert.Equal(t, []string{"ClientID is required"}, messagesFor(got, "row-0", "id"))
	assert.Equal(t, []string{"Duplicate ClientID found"}, messagesFor(got, "C1", "id"))
	assert.Equal(t, []string{"ClientName is required"}, messagesFor(got, "C2", "name"))
	assert.Equal(t, []string{"PriorityLevel must be between 1 and 5"}, messagesFor(got, "C2", "priority"))
	assert.Equal(t, []string{"RequestedTaskIDs must be a valid array"}, messagesFor(got, "C2", "requestedTaskIds"))
	assert.Equal(t, []string{"Invalid JSON format in AttributesJSON"}, messagesFor(got, "C2", "attributesJson"))

	email := findings.Filter{EntityID: "C2", Field: "email"}.Apply(got)
	require.Len(t, email, 1)
	assert.Equal(t, domain.SeverityWarning, email[0].Severity)
}

func TestPriorityRange(t *testing.T) {
	v := newValidator()
	for p := -1; p <= 7; p++ {
		c := validClient("C1")
		c.Priority = domain.Int(p)
		task := validTask("T1")
		task.Priority = domain.Int(p)
		got := append(v.ValidateClients([]domain.Client{c}, domain.Snapshot{}),
			v.ValidateTasks([]domain.Task{task}, domain.Snapshot{})...)
		priority := findings.Filter{Field: "priority", Severity: domain.SeverityError}.Apply(got)
		if p >= 1 && p <= 5 {
			assert.Empty(t, priority, "priority %d", p)
		} else {
			assert.Len(t, priority, 2, "priority %d", p)
		}
	}
}

func TestRequestedTaskReferencesOnePerMissingID(t *testing.T) {
	v := newValidator()
	c := validClient("C1")
	c.RequestedTaskIDs = []string{"T1", "T9", "T8"}
	got := v.ValidateClients([]domain.Client{c}, domain.Snapshot{Tasks: []domain.Task{validTask("T1")}})
	assert.Equal(t, []string{
		"RequestedTaskIDs reference non-existent task: T9",
		"RequestedTaskIDs reference non-existent task: T8",
	}, messagesFor(got, "C1", "requestedTaskIds"))
}

func TestWorkerChecks(t *testing.T) {
	v := newValidator()
	empty := validWorker("W2", "go")
	empty.AvailableSlots = nil
	bad := validWorker("W3")
	bad.AvailableSlots = []int{1, 0}
	bad.MaxLoadPerPhase = domain.Int(0)
	bad.QualificationLevel = domain.Int(-1)
	malformed := validWorker("W4", "go")
	malformed.AvailableSlots = nil
	malformed.MarkMalformed("availableSlots")

	got := v.ValidateWorkers([]domain.Worker{validWorker("W1", "go"), empty, bad, malformed, validWorker("W1", "go")})

	assert.Equal(t, []string{"AvailableSlots must contain at least one phase number"}, messagesFor(got, "W2", "availableSlots"))
	assert.Equal(t, []string{"AvailableSlots must contain valid phase numbers (≥1)"}, messagesFor(got, "W3", "availableSlots"))
	assert.Equal(t, []string{"AvailableSlots must contain valid phase numbers (≥1)"}, messagesFor(got, "W4", "availableSlots"))
	assert.Equal(t, []string{"MaxLoadPerPhase must be at least 1"}, messagesFor(got, "W3", "maxLoadPerPhase"))
	assert.Equal(t, []string{"At least one skill is required"}, messagesFor(got, "W3", "skills"))
	assert.Equal(t, []string{"QualificationLevel cannot be negative"}, messagesFor(got, "W3", "qualificationLevel"))
	assert.Equal(t, []string{"Duplicate WorkerID found"}, messagesFor(got, "W1", "id"))
}

func TestTaskChecks(t *testing.T) {
	v := newValidator()
	refs := domain.Snapshot{
		Clients: []domain.Client{validClient("C1")},
		Workers: []domain.Worker{validWorker("W1", "Go")},
	}
	t2 := validTask("T2", "go", "rust")
	t2.Duration = domain.Int(0)
	t2.MaxConcurrent = domain.Int(0)
	t2.PreferredPhases = []int{0, 2}
	t2.ClientID = "C9"
	t2.Dependencies = []string{"T1", "T7", "T2"}
	t2.AttributesJSON = "[1,"
	t3 := validTask("T3")
	t3.MarkMalformed("requiredSkills")

	got := v.ValidateTasks([]domain.Task{validTask("T1", "go"), t2, t3}, refs)

	assert.Empty(t, messagesFor(got, "T1", "requiredSkills"), "case-insensitive skill match")
	assert.Equal(t, []string{"Duration must be at least 1 phase"}, messagesFor(got, "T2", "duration"))
	assert.Equal(t, []string{"MaxConcurrent must be at least 1"}, messagesFor(got, "T2", "maxConcurrent"))
	assert.Equal(t, []string{"No workers available with skills: rust"}, messagesFor(got, "T2", "requiredSkills"))
	assert.Equal(t, []string{"PreferredPhases must contain valid phase numbers (≥1)"}, messagesFor(got, "T2", "preferredPhases"))
	assert.Equal(t, []string{"Referenced client does not exist"}, messagesFor(got, "T2", "clientId"))
	assert.Equal(t, []string{"Invalid task dependency: T7", "Task cannot depend on itself"}, messagesFor(got, "T2", "dependencies"))
	assert.Equal(t, []string{"Invalid JSON format in AttributesJSON"}, messagesFor(got, "T2", "attributesJson"))
	assert.Equal(t, []string{"RequiredSkills must be a valid array"}, messagesFor(got, "T3", "requiredSkills"))
}

func TestNonNumericCellsAreReported(t *testing.T) {
	v := newValidator()
	p := ingest.Parser{}
	tasks := p.Tasks([]ingest.Row{{
		"TaskID": "T1", "TaskName": "Build", "Duration": "two", "MaxConcurrent": "1",
		"Priority": "high", "EstimatedHours": "lots",
	}})
	workers := p.Workers([]ingest.Row{{
		"WorkerID": "W1", "WorkerName": "Ana", "Skills": "go", "AvailableSlots": "1",
		"MaxLoadPerPhase": "1", "QualificationLevel": "senior",
	}})
	clients := p.Clients([]ingest.Row{{"ClientID": "C1", "ClientName": "Acme", "PriorityLevel": "urgent"}})

	got := v.ValidateTasks(tasks, domain.Snapshot{Workers: workers})
	assert.Equal(t, []string{"Duration must be a number"}, messagesFor(got, "T1", "duration"))
	assert.Equal(t, []string{"Priority must be a number"}, messagesFor(got, "T1", "priority"))
	assert.Equal(t, []string{"EstimatedHours must be a number"}, messagesFor(got, "T1", "estimatedHours"))
	assert.Empty(t, messagesFor(got, "T1", "maxConcurrent"))

	got = v.ValidateWorkers(workers)
	assert.Equal(t, []string{"QualificationLevel must be a number"}, messagesFor(got, "W1", "qualificationLevel"))
	assert.Empty(t, messagesFor(got, "W1", "maxLoadPerPhase"))

	got = v.ValidateClients(clients, domain.Snapshot{})
	require.Len(t, got, 1)
	assert.Equal(t, CheckNumber, got[0].Check)
	assert.Equal(t, "priority", got[0].Field)
}

func TestSingletonTaskResolvesAgainstRefs(t *testing.T) {
	v := newValidator()
	edited := validTask("T2")
	edited.Dependencies = []string{"T1"}
	refs := domain.Snapshot{Tasks: []domain.Task{validTask("T1"), edited}}
	got := v.ValidateTasks([]domain.Task{edited}, refs)
	assert.Empty(t, got)
}

func TestValidatorDoesNotMutateInput(t *testing.T) {
	v := newValidator()
	tasks := []domain.Task{validTask("T1", "Go")}
	before := domain.Snapshot{Tasks: tasks}.Clone()
	_ = v.ValidateTasks(tasks, domain.Snapshot{})
	assert.Equal(t, before.Tasks, tasks)
}
