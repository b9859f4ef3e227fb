package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeEvidence(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "evidence.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing evidence: %v", err)
	}
	return path
}

func TestLoadEvidence(t *testing.T) {
	digest := strings.Repeat("aa", 32)

	tests := []struct {
		name    string
		content string
		wantErr bool
		count   int
	}{
		{
			name: "valid single entry",
			content: `measurements:
  - index: 0
    algorithm: sha256
    digest: ` + digest + "\n",
			count: 1,
		},
		{
			name: "uppercase digest with prefix",
			content: `measurements:
  - index: 7
    algorithm: SHA-256
    digest: 0x` + strings.ToUpper(digest) + "\n",
			count: 1,
		},
		{
			name: "unknown algorithm",
			content: `measurements:
  - index: 0
    algorithm: md5
    digest: ` + digest + "\n",
			wantErr: true,
		},
		{
			name: "digest length mismatch",
			content: `measurements:
  - index: 0
    algorithm: sha256
    digest: ` + strings.Repeat("aa", 20) + "\n",
			wantErr: true,
		},
		{
			name: "invalid hex",
			content: `measurements:
  - index: 0
    algorithm: sha256
    digest: ` + strings.Repeat("zz", 32) + "\n",
			wantErr: true,
		},
		{
			name:    "malformed yaml",
			content: "measurements: [abc\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeEvidence(t, tt.content)
			ms, err := loadEvidence(path)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("loadEvidence: %v", err)
			}
			if len(ms) != tt.count {
				t.Fatalf("got %d measurements, want %d", len(ms), tt.count)
			}
			if ms[0].ReadAt.IsZero() {
				t.Error("ReadAt should be stamped at load time")
			}
		})
	}
}

func TestLoadEvidence_MissingFile(t *testing.T) {
	_, err := loadEvidence(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestEvaluateCommand_FromFileGranted(t *testing.T) {
	db := filepath.Join(t.TempDir(), "test.db")
	digest := strings.Repeat("aa", 32)

	_, err := runCLI(t, "register", "node-1", "--db", db, "--index", "0", "--digest", digest)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	evidence := writeEvidence(t, `measurements:
  - index: 0
    algorithm: sha256
    digest: `+digest+"\n")

	out, err := runCLI(t, "evaluate", "node-1", "--db", db, "--from-file", evidence)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if exitCode != 0 {
		t.Errorf("exit code = %d, want 0 for a granted evaluation", exitCode)
	}
	if !strings.Contains(out, "MATCH") {
		t.Errorf("expected MATCH in output, got: %s", out)
	}
}

func TestEvaluateCommand_FromFileDenied(t *testing.T) {
	db := filepath.Join(t.TempDir(), "test.db")

	_, err := runCLI(t, "register", "node-1", "--db", db,
		"--index", "0", "--digest", strings.Repeat("aa", 32))
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	evidence := writeEvidence(t, `measurements:
  - index: 0
    algorithm: sha256
    digest: `+strings.Repeat("bb", 32)+"\n")

	out, err := runCLI(t, "evaluate", "node-1", "--db", db, "--from-file", evidence)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if exitCode != 1 {
		t.Errorf("exit code = %d, want 1 for a denied evaluation", exitCode)
	}
	if !strings.Contains(out, "MISMATCH") {
		t.Errorf("expected MISMATCH in output, got: %s", out)
	}
	if !strings.Contains(out, strings.Repeat("bb", 32)) {
		t.Errorf("expected observed digest in mismatch table, got: %s", out)
	}
	if !strings.Contains(out, "pcrgate register node-1") {
		t.Errorf("expected remediation command in output, got: %s", out)
	}
}

func TestEvaluateCommand_PermissiveWithoutSelectors(t *testing.T) {
	db := filepath.Join(t.TempDir(), "test.db")

	evidence := writeEvidence(t, "measurements: []\n")

	out, err := runCLI(t, "evaluate", "unregistered", "--db", db, "--from-file", evidence)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if exitCode != 0 {
		t.Errorf("exit code = %d, want 0 when no selectors are registered", exitCode)
	}
	if !strings.Contains(out, "MATCH") {
		t.Errorf("expected MATCH in output, got: %s", out)
	}
}

func TestEvaluateCommand_JSONOutput(t *testing.T) {
	db := filepath.Join(t.TempDir(), "test.db")

	_, err := runCLI(t, "register", "node-1", "--db", db,
		"--index", "0", "--digest", strings.Repeat("aa", 32))
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	evidence := writeEvidence(t, `measurements:
  - index: 0
    algorithm: sha256
    digest: `+strings.Repeat("bb", 32)+"\n")

	out, err := runCLI(t, "evaluate", "node-1", "--db", db,
		"--from-file", evidence, "-o", "json")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if exitCode != 1 {
		t.Errorf("exit code = %d, want 1", exitCode)
	}
	for _, field := range []string{`"outcome": "MISMATCH"`, `"principal_id": "node-1"`, `"reason": "digest"`, `"action": "re-register"`} {
		if !strings.Contains(out, field) {
			t.Errorf("expected %s in json output, got: %s", field, out)
		}
	}
}
