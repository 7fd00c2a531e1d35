package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/advdigital/go-lead-intake/internal/domain"
	"github.com/advdigital/go-lead-intake/internal/extract"
	"github.com/advdigital/go-lead-intake/internal/llm"
	"github.com/advdigital/go-lead-intake/internal/repo"
)

// ---------- test helpers ----------

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

type fakeModel struct {
	mu        sync.Mutex
	reply     string
	err       error
	calls     int
	gotSystem string
	gotTurns  []llm.Turn
}

func (f *fakeModel) Complete(_ context.Context, system string, turns []llm.Turn) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.gotSystem = system
	f.gotTurns = append([]llm.Turn(nil), turns...)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

type fakeDispatcher struct {
	mu   sync.Mutex
	err  error
	sent []string // "recipient|text"
}

func (f *fakeDispatcher) Send(_ context.Context, recipient, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, recipient+"|"+text)
	return f.err
}

// memBuffer is an in-memory Store standing in for Redis.
type memBuffer struct {
	mu    sync.Mutex
	lists map[string][]string
	err   error
}

func newMemBuffer() *memBuffer { return &memBuffer{lists: make(map[string][]string)} }

func (b *memBuffer) Append(_ context.Context, id, fragment string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return false, b.err
	}
	b.lists[id] = append(b.lists[id], fragment)
	return len(b.lists[id]) == 1, nil
}

func (b *memBuffer) Drain(_ context.Context, id string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return nil, b.err
	}
	frags := b.lists[id]
	delete(b.lists, id)
	if len(frags) == 0 {
		return nil, nil
	}
	return frags, nil
}

func newTurnService(t *testing.T, db *gorm.DB, model Generator, disp Dispatcher, buf *memBuffer) *TurnService {
	t.Helper()
	return &TurnService{
		DB:              db,
		Buffer:          buf,
		Model:           model,
		Dispatch:        disp,
		Extractor:       extract.New(""),
		PauseOnComplete: true,
		Log:             zerolog.Nop(),
	}
}

const briefingReply = `Perfeito, tenho tudo!
[FINALIZADO]
{"nome_advogado": "Ana Souza", "nome_escritorio": "Souza Advocacia", "especialidades": "Trabalhista", "diferencial": "Atendimento 24h"}`

// ---------- Process ----------

func TestProcess_PersistsPairAndDispatchesReply(t *testing.T) {
	db := newTestDB(t)
	model := &fakeModel{reply: "Qual o nome do escritório?"}
	disp := &fakeDispatcher{}
	svc := newTurnService(t, db, model, disp, newMemBuffer())

	if err := svc.Process(context.Background(), "c1", "Olá, sou advogada"); err != nil {
		t.Fatalf("process: %v", err)
	}

	msgs, err := repo.ListMessages(db, "c1", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("messages = %d; want user+model pair", len(msgs))
	}
	if msgs[0].Role != domain.RoleUser || msgs[0].Content != "Olá, sou advogada" {
		t.Fatalf("first message = %+v", msgs[0])
	}
	if msgs[1].Role != domain.RoleModel || msgs[1].Content != model.reply {
		t.Fatalf("second message = %+v", msgs[1])
	}

	lead, err := repo.GetLead(context.Background(), db, "c1")
	if err != nil {
		t.Fatalf("get lead: %v", err)
	}
	if lead.Status != domain.LeadStatusOpen {
		t.Fatalf("lead status = %q; want open", lead.Status)
	}

	if len(disp.sent) != 1 || disp.sent[0] != "c1|"+model.reply {
		t.Fatalf("dispatched = %v", disp.sent)
	}
}

func TestProcess_SendsHistoryInModelTaxonomy(t *testing.T) {
	db := newTestDB(t)
	if _, err := repo.CreateMessage(db, "c1", domain.RoleUser, "Oi"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := repo.CreateMessage(db, "c1", domain.RoleModel, "Olá! Qual seu nome?"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	model := &fakeModel{reply: "Certo."}
	svc := newTurnService(t, db, model, &fakeDispatcher{}, newMemBuffer())

	if err := svc.Process(context.Background(), "c1", "Ana"); err != nil {
		t.Fatalf("process: %v", err)
	}

	want := []llm.Turn{
		{Role: llm.RoleUser, Content: "Oi"},
		{Role: llm.RoleAssistant, Content: "Olá! Qual seu nome?"},
		{Role: llm.RoleUser, Content: "Ana"},
	}
	if len(model.gotTurns) != len(want) {
		t.Fatalf("turns = %d; want %d", len(model.gotTurns), len(want))
	}
	for i, w := range want {
		if model.gotTurns[i] != w {
			t.Fatalf("turn %d = %+v; want %+v", i, model.gotTurns[i], w)
		}
	}
	if !strings.Contains(model.gotSystem, "ADV Digital") {
		t.Fatalf("system prompt missing interview instruction: %q", model.gotSystem)
	}
}

func TestProcess_CompletedBriefingUpsertsLeadAndPauses(t *testing.T) {
	db := newTestDB(t)
	model := &fakeModel{reply: briefingReply}
	disp := &fakeDispatcher{}
	svc := newTurnService(t, db, model, disp, newMemBuffer())

	if err := svc.Process(context.Background(), "c1", "Meu diferencial é atendimento 24h"); err != nil {
		t.Fatalf("process: %v", err)
	}

	lead, err := repo.GetLead(context.Background(), db, "c1")
	if err != nil {
		t.Fatalf("get lead: %v", err)
	}
	if lead.Status != domain.LeadStatusComplete {
		t.Fatalf("status = %q; want complete", lead.Status)
	}
	if lead.LawyerName != "Ana Souza" || lead.FirmName != "Souza Advocacia" ||
		lead.Specialties != "Trabalhista" || lead.Differentiator != "Atendimento 24h" {
		t.Fatalf("lead fields = %+v", lead)
	}
	if !lead.AIPaused {
		t.Fatal("lead must be paused after completion (PauseOnComplete=true)")
	}

	// Dispatched text is the reply without the payload framing.
	if len(disp.sent) != 1 || disp.sent[0] != "c1|Perfeito, tenho tudo!" {
		t.Fatalf("dispatched = %v", disp.sent)
	}
}

func TestProcess_PauseOnCompleteDisabled(t *testing.T) {
	db := newTestDB(t)
	svc := newTurnService(t, db, &fakeModel{reply: briefingReply}, &fakeDispatcher{}, newMemBuffer())
	svc.PauseOnComplete = false

	if err := svc.Process(context.Background(), "c1", "dados"); err != nil {
		t.Fatalf("process: %v", err)
	}
	lead, err := repo.GetLead(context.Background(), db, "c1")
	if err != nil {
		t.Fatalf("get lead: %v", err)
	}
	if lead.AIPaused {
		t.Fatal("lead must stay unpaused when PauseOnComplete=false")
	}
}

func TestProcess_PausedLeadSkipsModelAndDispatch(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	if err := repo.CompleteLead(ctx, db, "c1", domain.Lead{LawyerName: "Ana"}, true); err != nil {
		t.Fatalf("seed lead: %v", err)
	}

	model := &fakeModel{reply: "não deveria ser chamado"}
	disp := &fakeDispatcher{}
	svc := newTurnService(t, db, model, disp, newMemBuffer())

	if err := svc.Process(ctx, "c1", "Olá de novo"); err != nil {
		t.Fatalf("process: %v", err)
	}
	if model.calls != 0 {
		t.Fatalf("model calls = %d; paused conversation must not reach the model", model.calls)
	}
	if len(disp.sent) != 0 {
		t.Fatalf("dispatched = %v; want none", disp.sent)
	}
	msgs, _ := repo.ListMessages(db, "c1", 0)
	if len(msgs) != 0 {
		t.Fatalf("messages = %d; paused turn must not persist", len(msgs))
	}
}

func TestProcess_ModelFailureFallsBackToApology(t *testing.T) {
	db := newTestDB(t)
	model := &fakeModel{err: errors.New("upstream 500")}
	disp := &fakeDispatcher{}
	svc := newTurnService(t, db, model, disp, newMemBuffer())

	if err := svc.Process(context.Background(), "c1", "Olá"); err != nil {
		t.Fatalf("process: %v", err)
	}

	msgs, _ := repo.ListMessages(db, "c1", 0)
	if len(msgs) != 2 || msgs[1].Content != FallbackReply {
		t.Fatalf("messages = %+v; want persisted fallback", msgs)
	}
	if len(disp.sent) != 1 || disp.sent[0] != "c1|"+FallbackReply {
		t.Fatalf("dispatched = %v", disp.sent)
	}
}

func TestProcess_NilModelAborts(t *testing.T) {
	db := newTestDB(t)
	disp := &fakeDispatcher{}
	svc := newTurnService(t, db, nil, disp, newMemBuffer())

	err := svc.Process(context.Background(), "c1", "Olá")
	if !errors.Is(err, ErrModelNotConfigured) {
		t.Fatalf("err = %v; want ErrModelNotConfigured", err)
	}
	msgs, _ := repo.ListMessages(db, "c1", 0)
	if len(msgs) != 0 || len(disp.sent) != 0 {
		t.Fatal("nil model must not persist or dispatch anything")
	}
}

func TestProcess_DispatchFailureKeepsHistory(t *testing.T) {
	db := newTestDB(t)
	disp := &fakeDispatcher{err: errors.New("relay down")}
	svc := newTurnService(t, db, &fakeModel{reply: "Certo."}, disp, newMemBuffer())

	err := svc.Process(context.Background(), "c1", "Olá")
	if err == nil {
		t.Fatal("expected dispatch error to surface")
	}
	msgs, _ := repo.ListMessages(db, "c1", 0)
	if len(msgs) != 2 {
		t.Fatalf("messages = %d; persisted pair must survive a delivery failure", len(msgs))
	}
}

// ---------- Flush ----------

func TestFlush_CombinesFragmentsInOrder(t *testing.T) {
	db := newTestDB(t)
	buf := newMemBuffer()
	ctx := context.Background()
	for _, frag := range []string{"Oi", "Sou a Ana", "do Souza Advocacia"} {
		if _, err := buf.Append(ctx, "c1", frag); err != nil {
			t.Fatalf("seed buffer: %v", err)
		}
	}

	model := &fakeModel{reply: "Qual a especialidade?"}
	svc := newTurnService(t, db, model, &fakeDispatcher{}, buf)

	n, err := svc.Flush(ctx, "c1")
	if err != nil {
		t.Fatalf("flush: %v", err)
	}
	if n != 3 {
		t.Fatalf("fragments = %d; want 3", n)
	}

	want := "Oi\n\nSou a Ana\n\ndo Souza Advocacia"
	last := model.gotTurns[len(model.gotTurns)-1]
	if last.Content != want {
		t.Fatalf("combined turn = %q; want %q", last.Content, want)
	}

	// Buffer is consumed; a second flush is a no-op.
	n, err = svc.Flush(ctx, "c1")
	if err != nil || n != 0 {
		t.Fatalf("second flush = (%d, %v); want (0, nil)", n, err)
	}
	if model.calls != 1 {
		t.Fatalf("model calls = %d; empty flush must not call the model", model.calls)
	}
}

func TestFlush_RecordsTurnLogStages(t *testing.T) {
	db := newTestDB(t)
	buf := newMemBuffer()
	ctx := context.Background()
	if _, err := buf.Append(ctx, "c1", "Olá"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	svc := newTurnService(t, db, &fakeModel{reply: "Oi!"}, &fakeDispatcher{}, buf)
	if _, err := svc.Flush(ctx, "c1"); err != nil {
		t.Fatalf("flush: %v", err)
	}

	var logs []domain.TurnLog
	if err := db.Where("conversation_id = ?", "c1").Find(&logs).Error; err != nil {
		t.Fatalf("find logs: %v", err)
	}
	if len(logs) != 1 || logs[0].Stage != domain.TurnStageDispatched {
		t.Fatalf("turn logs = %+v; want one dispatched row", logs)
	}
}

func TestFlush_NilModelLeavesBufferIntact(t *testing.T) {
	db := newTestDB(t)
	buf := newMemBuffer()
	ctx := context.Background()
	if _, err := buf.Append(ctx, "c1", "Olá"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	svc := newTurnService(t, db, nil, &fakeDispatcher{}, buf)
	if _, err := svc.Flush(ctx, "c1"); !errors.Is(err, ErrModelNotConfigured) {
		t.Fatalf("err = %v; want ErrModelNotConfigured", err)
	}
	if frags, _ := buf.Drain(ctx, "c1"); len(frags) != 1 {
		t.Fatalf("buffer = %v; fragments must survive a configuration error", frags)
	}
}

func TestFlush_EmptyConversationID(t *testing.T) {
	svc := newTurnService(t, newTestDB(t), &fakeModel{reply: "x"}, &fakeDispatcher{}, newMemBuffer())
	if _, err := svc.Flush(context.Background(), "  "); !errors.Is(err, ErrEmptyConversationID) {
		t.Fatalf("err = %v; want ErrEmptyConversationID", err)
	}
}
