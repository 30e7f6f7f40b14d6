package prompt

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefault_Parses(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("default catalog: %v", err)
	}
	if c.GratitudeReply != "🙌 ¡Me alegra que haya servido!" {
		t.Errorf("unexpected gratitude reply %q", c.GratitudeReply)
	}
	if len(c.Gratitude) == 0 {
		t.Error("gratitude vocabulary should not be empty")
	}
	if c.AckReaction != "eyes" {
		t.Errorf("expected eyes, got %q", c.AckReaction)
	}
}

func TestMessages_EmbedsQuestionAndDomains(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatal(err)
	}
	msgs, err := c.Messages("no puedo conectar mi número a la API")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected system + user, got %d messages", len(msgs))
	}
	if msgs[0].Role != "system" || msgs[1].Role != "user" {
		t.Fatalf("unexpected roles %q, %q", msgs[0].Role, msgs[1].Role)
	}
	if !strings.Contains(msgs[1].Content, `"""no puedo conectar mi número a la API"""`) {
		t.Errorf("user turn should quote the question: %q", msgs[1].Content)
	}
	for _, d := range c.TrustedDomains {
		if !strings.Contains(msgs[0].Content, "- "+d) {
			t.Errorf("system turn should list %s", d)
		}
	}
	if !strings.Contains(msgs[0].Content, "No encontré un link oficial") {
		t.Error("system turn should carry the no-link instruction")
	}
}

func TestErrorNotice(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatal(err)
	}
	got := c.ErrorNotice(errors.New("openai 500: boom"))
	if got != "⚠️ Error procesando el mensaje: openai 500: boom" {
		t.Errorf("unexpected notice %q", got)
	}
}

func TestLoad_OverrideKeepsMissingFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompt.yaml")
	content := "gratitudeReply: \"Thanks for the feedback!\"\ngratitude: [cheers]\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.GratitudeReply != "Thanks for the feedback!" {
		t.Errorf("override not applied: %q", c.GratitudeReply)
	}
	if len(c.Gratitude) != 1 || c.Gratitude[0] != "cheers" {
		t.Errorf("vocabulary should be replaced, got %v", c.Gratitude)
	}
	if c.ValidatedReaction != "white_check_mark" {
		t.Errorf("default field lost: %q", c.ValidatedReaction)
	}
}

func TestLoad_EmptyPathIsDefault(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if c.ErrorReply == "" {
		t.Error("expected default error reply")
	}
}

func TestLoad_RejectsBrokenTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompt.yaml")
	if err := os.WriteFile(path, []byte("user: \"{{.Text\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected template parse error")
	}
}

func TestLoad_RejectsErrorReplyWithoutVerb(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompt.yaml")
	if err := os.WriteFile(path, []byte("errorReply: \"algo falló\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for errorReply without %%v")
	}
}
