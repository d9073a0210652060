package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseFileBasics(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "config", strings.Join([]string{
		"Host api",
		"  HostName api.example.com",
		"  User deploy",
		"  Port 2200",
		"  IdentityFile ~/.ssh/id_api",
		"",
		"Host bare",
		"",
		"Host *.internal",
		"  User ops",
	}, "\n"))

	res, err := ParseFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Hosts) != 2 {
		t.Fatalf("expected 2 concrete hosts, got %+v", res.Hosts)
	}

	api := res.Hosts[0]
	if api.Alias != "api" || api.HostName != "api.example.com" || api.User != "deploy" || api.Port != 2200 {
		t.Fatalf("api = %+v", api)
	}
	if !strings.HasSuffix(api.IdentityFile, filepath.Join(".ssh", "id_api")) {
		t.Fatalf("identity = %q", api.IdentityFile)
	}

	bare := res.Hosts[1]
	if bare.HostName != "bare" || bare.Port != 22 || bare.IdentityFile != "" {
		t.Fatalf("bare = %+v", bare)
	}
}

func TestParseFileGlobAndNegation(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "config", strings.Join([]string{
		"Host prod-api prod-db",
		"  HostName unused",
		"Host prod-* !prod-db",
		"  User produser",
	}, "\n"))

	res, err := ParseFile(path)
	if err != nil {
		t.Fatal(err)
	}
	byAlias := map[string]string{}
	for _, h := range res.Hosts {
		byAlias[h.Alias] = h.User
	}
	if byAlias["prod-api"] != "produser" {
		t.Fatalf("prod-api user = %q", byAlias["prod-api"])
	}
	if byAlias["prod-db"] != "" {
		t.Fatalf("negated prod-db user = %q", byAlias["prod-db"])
	}
}

func TestParseFileInclude(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "extra.conf", strings.Join([]string{
		"Host extra",
		"  HostName extra.example.com",
	}, "\n"))
	path := writeConfig(t, dir, "config", strings.Join([]string{
		"Include extra.conf",
		"Host main",
		"  HostName main.example.com",
	}, "\n"))

	res, err := ParseFile(path)
	if err != nil {
		t.Fatal(err)
	}
	aliases := map[string]bool{}
	for _, h := range res.Hosts {
		aliases[h.Alias] = true
	}
	if !aliases["extra"] || !aliases["main"] {
		t.Fatalf("hosts = %+v", res.Hosts)
	}
}

func TestParseFileIncludeCycleWarnsNotFails(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "config", "Include config\nHost x\n  HostName x.example.com\n")

	res, err := ParseFile(path)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, w := range res.Warnings {
		if strings.Contains(w, "cycle") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected cycle warning, got %v", res.Warnings)
	}
}

func TestParseFileMatchBlockDoesNotLeak(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "config", strings.Join([]string{
		"Host api",
		"  HostName api.example.com",
		"",
		"Match user deploy",
		"  IdentityFile ~/.ssh/id_deploy",
		"  Port 2222",
		"",
		"Host db",
		"  HostName db.example.com",
	}, "\n"))

	res, err := ParseFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Hosts) != 2 {
		t.Fatalf("expected 2 hosts, got %+v", res.Hosts)
	}

	api := res.Hosts[0]
	if api.IdentityFile != "" {
		t.Fatalf("Match directives leaked into api: identity = %q", api.IdentityFile)
	}
	if api.Port != 22 {
		t.Fatalf("Match directives leaked into api: port = %d", api.Port)
	}
	if res.Hosts[1].Alias != "db" {
		t.Fatalf("host after Match block lost: %+v", res.Hosts)
	}

	found := false
	for _, w := range res.Warnings {
		if strings.Contains(w, "Match block skipped") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a skipped-Match warning, got %v", res.Warnings)
	}
}

func TestParseFileMissingWarnsNotFails(t *testing.T) {
	res, err := ParseFile(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Hosts) != 0 || len(res.Warnings) == 0 {
		t.Fatalf("result = %+v", res)
	}
}

func TestIdentityFor(t *testing.T) {
	res, err := ParseFile(writeConfig(t, t.TempDir(), "config", strings.Join([]string{
		"Host api",
		"  HostName api.example.com",
		"  IdentityFile /keys/id_api",
	}, "\n")))
	if err != nil {
		t.Fatal(err)
	}

	id := IdentityFor(res.Hosts[0])
	if id.IdentityFile != "/keys/id_api" || id.PublicKeyFile != "/keys/id_api.pub" {
		t.Fatalf("identity = %+v", id)
	}
	if !id.HasIdentityFile() {
		t.Fatal("HasIdentityFile = false")
	}

	bare := IdentityFor(res.Hosts[0])
	bare.IdentityFile = ""
	bare.PublicKeyFile = ""
	if bare.HasIdentityFile() {
		t.Fatal("empty identity must report false")
	}
}

func TestStripInlineComment(t *testing.T) {
	if got := stripInlineComment("HostName example.com # prod box"); got != "HostName example.com" {
		t.Fatalf("got %q", got)
	}
	if got := stripInlineComment(`User "we # like" trailing`); got != `User "we # like" trailing` {
		t.Fatalf("quoted got %q", got)
	}
}
