package findings

import (
	"reflect"
	"testing"
)

func TestExtract(t *testing.T) {
	text := `Scanning complete.
<write>Critical: SQL injection in /login endpoint</write>
Some narration here.
<write>
Outdated Apache 2.4.29 detected
</write>
<write>   </write>`

	got := Extract(text)
	want := []string{
		"Critical: SQL injection in /login endpoint",
		"Outdated Apache 2.4.29 detected",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Extract = %q, want %q", got, want)
	}
}

func TestExtractNone(t *testing.T) {
	if got := Extract("nothing tagged here"); got != nil {
		t.Errorf("Extract = %q, want nil", got)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		content string
		want    Severity
	}{
		{"SQL injection in login form", SeverityCritical},
		{"Remote Code Execution via file upload", SeverityCritical},
		{"Default credentials admin/admin accepted", SeverityCritical},
		{"Stored XSS in comment field", SeverityHigh},
		{"Privilege escalation via cron job", SeverityHigh},
		{"Outdated OpenSSH version", SeverityMedium},
		{"TLS misconfiguration on port 443", SeverityMedium},
		{"Server banner reveals nginx version", SeverityLow},
		{"Port 80 open, standard web server", SeverityInfo},
	}
	for _, tt := range tests {
		if got := Classify(tt.content); got != tt.want {
			t.Errorf("Classify(%q) = %s, want %s", tt.content, got, tt.want)
		}
	}
}

func TestStoreRecordAndSummary(t *testing.T) {
	s, err := NewStore(nil, nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer s.Close()

	s.Record("agent-1", "SQL injection in /search")
	s.Record("agent-1", "Outdated Tomcat version")
	s.Record("agent-2", "Port 8080 open")

	summary := s.Summary()
	if summary[SeverityCritical] != 1 || summary[SeverityMedium] != 1 || summary[SeverityInfo] != 1 {
		t.Errorf("summary = %v", summary)
	}

	list := s.List()
	if len(list) != 3 {
		t.Fatalf("list length = %d", len(list))
	}
	if list[0].Content != "SQL injection in /search" {
		t.Errorf("record order not preserved: %q", list[0].Content)
	}
	if list[0].ID == "" || list[0].CreatedAt.IsZero() {
		t.Errorf("finding missing id or timestamp: %+v", list[0])
	}
}

func TestStoreRecordFromResponse(t *testing.T) {
	s, err := NewStore(nil, nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer s.Close()

	response := `RUN nmap -sV 10.0.0.1
<write>Exposed database on port 5432 with default credentials</write>
<write>Server banner reveals version</write>`

	recorded, err := s.RecordFromResponse("agent-1", response)
	if err != nil {
		t.Fatalf("RecordFromResponse: %v", err)
	}
	if len(recorded) != 2 {
		t.Fatalf("recorded %d findings, want 2", len(recorded))
	}
	if recorded[0].Severity != SeverityCritical {
		t.Errorf("first finding severity = %s", recorded[0].Severity)
	}
	if recorded[0].AgentID != "agent-1" {
		t.Errorf("agent = %q", recorded[0].AgentID)
	}
}

func TestStoreSearch(t *testing.T) {
	s, err := NewStore(nil, nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer s.Close()

	s.Record("agent-1", "SQL injection in the login form")
	s.Record("agent-1", "Directory listing enabled on /backup")
	s.Record("agent-2", "Weak cipher suites on the mail server")

	hits, err := s.Search("injection login", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("no hits for matching query")
	}
	if hits[0].Content != "SQL injection in the login form" {
		t.Errorf("top hit = %q", hits[0].Content)
	}
}

func TestStoreBySeverity(t *testing.T) {
	s, err := NewStore(nil, nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer s.Close()

	s.Record("agent-1", "command injection in ping endpoint")
	s.Record("agent-1", "informational note")

	crit := s.BySeverity(SeverityCritical)
	if len(crit) != 1 || crit[0].Severity != SeverityCritical {
		t.Errorf("critical findings = %+v", crit)
	}
	if got := s.BySeverity(SeverityHigh); len(got) != 0 {
		t.Errorf("high findings = %+v, want none", got)
	}
}
