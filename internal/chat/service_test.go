package chat

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/querypilot/querypilot/internal/audit"
	"github.com/querypilot/querypilot/internal/auth"
	"github.com/querypilot/querypilot/internal/catalog"
	"github.com/querypilot/querypilot/internal/catalog/memory"
	"github.com/querypilot/querypilot/internal/nl2sql"
	"github.com/querypilot/querypilot/internal/query"
)

const ordersSchema = "CREATE TABLE orders(id int, total numeric);"

type fakeSynthesizer struct {
	outcome nl2sql.Outcome
	err     error
	request nl2sql.Request
	calls   int
}

func (f *fakeSynthesizer) Synthesize(_ context.Context, req nl2sql.Request) (nl2sql.Outcome, error) {
	f.calls++
	f.request = req
	return f.outcome, f.err
}

func (f *fakeSynthesizer) Provider() string {
	return "fake"
}

type fakeWarehouse struct {
	rows     []map[string]any
	err      error
	requests []query.Request
}

func (f *fakeWarehouse) Execute(_ context.Context, req query.Request) (query.Result, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return query.Result{}, f.err
	}
	rows := f.rows
	if req.RowLimit > 0 && len(rows) > req.RowLimit {
		rows = rows[:req.RowLimit]
	}
	return query.Result{SQL: query.ApplyRowLimit(req.SQL, req.RowLimit), Columns: []string{"total"}, Rows: rows}, nil
}

func (f *fakeWarehouse) Version(context.Context) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "PostgreSQL 16.3", nil
}

type fixture struct {
	service     *Service
	repo        *memory.Repository
	synthesizer *fakeSynthesizer
	warehouse   *fakeWarehouse
	tokens      *auth.TokenCodec
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := memory.NewRepository()
	tokens, err := auth.NewTokenCodec("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenCodec() error = %v", err)
	}
	synthesizer := &fakeSynthesizer{outcome: nl2sql.Accepted("SELECT SUM(total) AS total FROM orders;", "fake", "fake-model")}
	rows := make([]map[string]any, 0, 8)
	for i := 0; i < 8; i++ {
		rows = append(rows, map[string]any{"total": i})
	}
	warehouse := &fakeWarehouse{rows: rows}
	service := NewService(Dependencies{
		Users:       repo,
		Sessions:    repo,
		Audit:       audit.NewRecorder(repo, nil),
		Synthesizer: synthesizer,
		Warehouse:   warehouse,
		Tokens:      tokens,
	}, Options{PreviewRows: 5})
	return &fixture{service: service, repo: repo, synthesizer: synthesizer, warehouse: warehouse, tokens: tokens}
}

func (f *fixture) addUser(t *testing.T, username, password, role string, schema *string) catalog.User {
	t.Helper()
	user, err := f.repo.CreateUser(context.Background(), catalog.CreateUserInput{
		Username:     username,
		PasswordHash: auth.HashPassword(username, password),
		Role:         role,
		Schema:       schema,
	})
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	return user
}

func (f *fixture) turns(t *testing.T, username string) []catalog.ChatTurn {
	t.Helper()
	turns, err := f.repo.ListChatTurns(context.Background(), catalog.ListFilter{Username: username})
	if err != nil {
		t.Fatalf("ListChatTurns() error = %v", err)
	}
	return turns
}

func strPtr(value string) *string {
	return &value
}

func TestGenerateProducesPreviewAndAuditTrail(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "alice", "pw", catalog.RoleUser, strPtr(ordersSchema))

	result, err := f.service.Generate(context.Background(), auth.Principal{Username: "alice", Role: auth.RoleUser}, "show total sales")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if !strings.HasPrefix(strings.ToLower(result.SQL), "select") {
		t.Fatalf("SQL = %q", result.SQL)
	}
	if result.Explain != MessageExplain {
		t.Fatalf("Explain = %q", result.Explain)
	}
	if len(result.Preview) == 0 || len(result.Preview) > 5 {
		t.Fatalf("preview rows = %d, want 1..5", len(result.Preview))
	}
	if f.synthesizer.request.Schema != ordersSchema || f.synthesizer.request.Prompt != "show total sales" {
		t.Fatalf("synthesizer request = %+v", f.synthesizer.request)
	}
	if got := f.warehouse.requests[0].RowLimit; got != 5 {
		t.Fatalf("preview RowLimit = %d", got)
	}

	turns := f.turns(t, "alice")
	if len(turns) != 2 {
		t.Fatalf("turns = %+v", turns)
	}
	assistant, user := turns[0], turns[1]
	if user.Role != catalog.TurnRoleUser || user.Content != "show total sales" {
		t.Fatalf("user turn = %+v", user)
	}
	if assistant.Role != catalog.TurnRoleAssistant || assistant.SQL == nil || *assistant.SQL != result.SQL {
		t.Fatalf("assistant turn = %+v", assistant)
	}
	if assistant.Content != MessageProposedSQLPrefix+result.SQL {
		t.Fatalf("assistant content = %q", assistant.Content)
	}

	usage, err := f.repo.ListColumnUsage(context.Background())
	if err != nil {
		t.Fatalf("ListColumnUsage() error = %v", err)
	}
	if len(usage) != 1 || usage[0].ColumnName != "sum(total)" {
		t.Fatalf("usage = %+v", usage)
	}
}

func TestGenerateWithoutSchemaNeverCallsSynthesizer(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "bob", "pw", catalog.RoleUser, nil)

	_, err := f.service.Generate(context.Background(), auth.Principal{Username: "bob"}, "show total sales")
	if KindOf(err) != KindNoSchemaConfigured {
		t.Fatalf("KindOf() = %q, err = %v", KindOf(err), err)
	}
	if f.synthesizer.calls != 0 {
		t.Fatalf("synthesizer calls = %d", f.synthesizer.calls)
	}
	turns := f.turns(t, "bob")
	if len(turns) != 2 || turns[0].Content != MessageNoSchemaAssistant {
		t.Fatalf("turns = %+v", turns)
	}
}

func TestGenerateAdminUsesAdminSchema(t *testing.T) {
	f := newFixture(t)
	admin, err := f.repo.CreateUser(context.Background(), catalog.CreateUserInput{
		Username:    "root",
		Role:        catalog.RoleAdmin,
		Schema:      strPtr("CREATE TABLE own(id int);"),
		AdminSchema: strPtr(ordersSchema),
	})
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	if _, err := f.service.Generate(context.Background(), auth.Principal{Username: admin.Username}, "totals"); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if f.synthesizer.request.Schema != ordersSchema {
		t.Fatalf("schema = %q", f.synthesizer.request.Schema)
	}
}

func TestGenerateRefusal(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "alice", "pw", catalog.RoleUser, strPtr(ordersSchema))
	f.synthesizer.outcome = nl2sql.Refused("fake", "fake-model")

	_, err := f.service.Generate(context.Background(), auth.Principal{Username: "alice"}, "what's the weather")
	if KindOf(err) != KindSynthesisRefused {
		t.Fatalf("KindOf() = %q", KindOf(err))
	}
	var chatErr *Error
	if !errors.As(err, &chatErr) || chatErr.Message != MessageRefused {
		t.Fatalf("err = %v", err)
	}
	turns := f.turns(t, "alice")
	if len(turns) != 2 || turns[0].Content != MessageRefused || turns[0].SQL != nil {
		t.Fatalf("turns = %+v", turns)
	}
	if len(f.warehouse.requests) != 0 {
		t.Fatal("refusal must not reach the warehouse")
	}
}

func TestGenerateRejectsNonSelect(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "alice", "pw", catalog.RoleUser, strPtr(ordersSchema))
	f.synthesizer.outcome = nl2sql.Accepted("DELETE FROM orders;", "fake", "fake-model")

	_, err := f.service.Generate(context.Background(), auth.Principal{Username: "alice"}, "remove orders")
	if KindOf(err) != KindValidationRejected {
		t.Fatalf("KindOf() = %q", KindOf(err))
	}
	var chatErr *Error
	if !errors.As(err, &chatErr) || chatErr.Details["sql"] != "DELETE FROM orders;" {
		t.Fatalf("err details = %+v", chatErr)
	}
	if len(f.warehouse.requests) != 0 {
		t.Fatal("rejected SQL must not reach the warehouse")
	}
	if turns := f.turns(t, "alice"); turns[0].Content != MessageNotSelectTurn {
		t.Fatalf("turns = %+v", turns)
	}
}

func TestGenerateUpstreamErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{name: "failure", err: nl2sql.ErrUpstream, want: KindUpstreamFailure},
		{name: "timeout", err: nl2sql.ErrTimeout, want: KindUpstreamTimeout},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.addUser(t, "alice", "pw", catalog.RoleUser, strPtr(ordersSchema))
			f.synthesizer.err = tc.err

			_, err := f.service.Generate(context.Background(), auth.Principal{Username: "alice"}, "totals")
			if KindOf(err) != tc.want {
				t.Fatalf("KindOf() = %q, want %q", KindOf(err), tc.want)
			}
			if !errors.Is(err, tc.err) {
				t.Fatalf("err = %v, want wrapping %v", err, tc.err)
			}
		})
	}
}

func TestGeneratePreviewFailureIsReported(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "alice", "pw", catalog.RoleUser, strPtr(ordersSchema))
	f.warehouse.err = &query.QueryFailedError{SQL: "x", Err: errors.New("relation does not exist")}

	result, err := f.service.Generate(context.Background(), auth.Principal{Username: "alice"}, "totals")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if result.Preview != nil || result.PreviewError != MessageQueryFailed {
		t.Fatalf("result = %+v", result)
	}
}

func TestGenerateUnknownUserAndEmptyPrompt(t *testing.T) {
	f := newFixture(t)
	if _, err := f.service.Generate(context.Background(), auth.Principal{Username: "ghost"}, "x"); KindOf(err) != KindNotFound {
		t.Fatalf("unknown user KindOf() = %q", KindOf(err))
	}
	if _, err := f.service.Generate(context.Background(), auth.Principal{Username: "ghost"}, "  "); KindOf(err) != KindInvalidArgument {
		t.Fatalf("empty prompt KindOf() = %q", KindOf(err))
	}
}

func TestRunLogsSuccessfulQuery(t *testing.T) {
	f := newFixture(t)
	limit := 3

	result, err := f.service.Run(context.Background(), auth.Principal{Username: "alice"}, "SELECT total FROM orders", &limit)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(result.Rows) != 3 {
		t.Fatalf("rows = %d", len(result.Rows))
	}
	if result.SQL != "SELECT total FROM orders LIMIT 3;" {
		t.Fatalf("SQL = %q", result.SQL)
	}
	logs, _ := f.repo.ListQueryLogs(context.Background(), catalog.ListFilter{Username: "alice"})
	if len(logs) != 1 || logs[0].Status != catalog.QueryStatusOK || logs[0].RowsAffected != 3 || logs[0].ExecutionTimeMs == nil {
		t.Fatalf("logs = %+v", logs)
	}
}

func TestRunRejectsNonSelectWithoutExecuting(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Run(context.Background(), auth.Principal{Username: "alice"}, "  DROP TABLE orders", nil)
	if KindOf(err) != KindValidationRejected {
		t.Fatalf("KindOf() = %q", KindOf(err))
	}
	if len(f.warehouse.requests) != 0 {
		t.Fatal("rejected SQL reached the warehouse")
	}
	logs, _ := f.repo.ListQueryLogs(context.Background(), catalog.ListFilter{Username: "alice"})
	if len(logs) != 1 || logs[0].Status != catalog.QueryStatusError || logs[0].ErrorMessage == nil || *logs[0].ErrorMessage != MessageNotSelectLog {
		t.Fatalf("logs = %+v", logs)
	}
}

func TestRunMapsStoreErrors(t *testing.T) {
	f := newFixture(t)
	f.warehouse.err = &query.QueryFailedError{SQL: "SELECT 1", Err: errors.New("boom")}

	_, err := f.service.Run(context.Background(), auth.Principal{Username: "alice"}, "SELECT 1", nil)
	if KindOf(err) != KindUpstreamFailure {
		t.Fatalf("KindOf() = %q", KindOf(err))
	}
	logs, _ := f.repo.ListQueryLogs(context.Background(), catalog.ListFilter{Username: "alice"})
	if len(logs) != 1 || logs[0].ErrorMessage == nil || *logs[0].ErrorMessage != "boom" {
		t.Fatalf("logs = %+v", logs)
	}

	f.warehouse.err = &query.QueryFailedError{SQL: "SELECT 1", Err: query.ErrUpstreamTimeout}
	_, err = f.service.Run(context.Background(), auth.Principal{Username: "alice"}, "SELECT 1", nil)
	if KindOf(err) != KindUpstreamTimeout {
		t.Fatalf("timeout KindOf() = %q", KindOf(err))
	}
}

func TestRunRejectsStackedStatementsFromWarehouse(t *testing.T) {
	f := newFixture(t)
	f.warehouse.err = &query.QueryFailedError{SQL: "SELECT 1; SELECT 2", Err: query.ErrNotSingleStatement}

	_, err := f.service.Run(context.Background(), auth.Principal{Username: "alice"}, "SELECT 1; SELECT 2", nil)
	if KindOf(err) != KindValidationRejected {
		t.Fatalf("KindOf() = %q", KindOf(err))
	}
	logs, _ := f.repo.ListQueryLogs(context.Background(), catalog.ListFilter{Username: "alice"})
	if len(logs) != 1 || logs[0].Status != catalog.QueryStatusError {
		t.Fatalf("logs = %+v", logs)
	}
}

func TestRunRejectsNegativeLimit(t *testing.T) {
	f := newFixture(t)
	limit := -1
	if _, err := f.service.Run(context.Background(), auth.Principal{Username: "alice"}, "SELECT 1", &limit); KindOf(err) != KindInvalidArgument {
		t.Fatalf("KindOf() = %q", KindOf(err))
	}
}

func TestHistoryScopesByStoredRole(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "alice", "pw", catalog.RoleUser, strPtr(ordersSchema))
	f.addUser(t, "root", "pw", catalog.RoleAdmin, strPtr(ordersSchema))
	ctx := context.Background()
	_ = f.repo.InsertChatTurn(ctx, catalog.InsertChatTurnInput{Username: "alice", Role: catalog.TurnRoleUser, Content: "a"})
	_ = f.repo.InsertChatTurn(ctx, catalog.InsertChatTurnInput{Username: "root", Role: catalog.TurnRoleUser, Content: "b"})

	own, err := f.service.History(ctx, auth.Principal{Username: "alice", Role: auth.RoleAdmin})
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(own) != 1 {
		t.Fatalf("user history = %+v", own)
	}
	all, err := f.service.History(ctx, auth.Principal{Username: "root"})
	if err != nil {
		t.Fatalf("History() admin error = %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("admin history = %+v", all)
	}
}

func TestSessionLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := auth.Principal{Username: "alice"}
	bob := auth.Principal{Username: "bob"}

	id, err := f.service.SaveSession(ctx, alice, " ", nil)
	if err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}
	session, err := f.service.GetSession(ctx, alice, id)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if session.Name != "Chat session" || session.Messages == nil || len(session.Messages) != 0 {
		t.Fatalf("session = %+v", session)
	}

	if _, err := f.service.GetSession(ctx, bob, id); KindOf(err) != KindNotFound {
		t.Fatalf("GetSession(bob) KindOf() = %q", KindOf(err))
	}
	if err := f.service.DeleteSession(ctx, bob, id); KindOf(err) != KindNotFound {
		t.Fatalf("DeleteSession(bob) KindOf() = %q", KindOf(err))
	}

	_, _ = f.service.SaveSession(ctx, alice, "named", []json.RawMessage{json.RawMessage(`{"role":"user"}`)})
	sessions, err := f.service.ListSessions(ctx, alice)
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}
	if len(sessions) != 2 || sessions[0].Name != "named" {
		t.Fatalf("sessions = %+v", sessions)
	}
	if err := f.service.DeleteSession(ctx, alice, id); err != nil {
		t.Fatalf("DeleteSession() error = %v", err)
	}
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "alice", "pw", catalog.RoleAdmin, strPtr(ordersSchema))

	result, err := f.service.Login(context.Background(), "alice", "pw")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	principal, err := f.tokens.Verify(result.Token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if principal.Username != "alice" || principal.Role != auth.RoleAdmin {
		t.Fatalf("principal = %+v", principal)
	}
	if result.Schema == nil || *result.Schema != ordersSchema {
		t.Fatalf("schema = %v", result.Schema)
	}

	for _, creds := range [][2]string{{"alice", "wrong"}, {"ghost", "pw"}} {
		if _, err := f.service.Login(context.Background(), creds[0], creds[1]); KindOf(err) != KindInvalidCredentials {
			t.Fatalf("Login(%q) KindOf() = %q", creds[0], KindOf(err))
		}
	}
}

func TestAddUserValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []AddUserInput{
		{Username: "", Password: "pw", Schema: ordersSchema},
		{Username: "carol", Password: "pw", Role: "superuser", Schema: ordersSchema},
		{Username: "carol", Password: "pw", Schema: "   "},
	}
	for _, in := range cases {
		if _, err := f.service.AddUser(ctx, in); KindOf(err) != KindInvalidArgument {
			t.Fatalf("AddUser(%+v) KindOf() = %q", in, KindOf(err))
		}
	}

	user, err := f.service.AddUser(ctx, AddUserInput{Username: "carol", Password: "pw", Schema: ordersSchema})
	if err != nil {
		t.Fatalf("AddUser() error = %v", err)
	}
	if user.Role != catalog.RoleUser || !auth.VerifyPassword("carol", "pw", user.PasswordHash) {
		t.Fatalf("user = %+v", user)
	}
	if _, err := f.service.AddUser(ctx, AddUserInput{Username: "carol", Password: "pw", Schema: ordersSchema}); KindOf(err) != KindAlreadyExists {
		t.Fatalf("duplicate KindOf() = %q", KindOf(err))
	}
}

func TestUpdateUserRehashesWithNewUsername(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.addUser(t, "alice", "pw", catalog.RoleUser, strPtr(ordersSchema))

	updated, err := f.service.UpdateUser(ctx, user.ID, UpdateUserInput{Username: strPtr("alicia"), Password: strPtr("new-pw")})
	if err != nil {
		t.Fatalf("UpdateUser() error = %v", err)
	}
	if !auth.VerifyPassword("alicia", "new-pw", updated.PasswordHash) {
		t.Fatal("password must be re-hashed with the new username")
	}
	if _, err := f.service.Login(ctx, "alicia", "new-pw"); err != nil {
		t.Fatalf("Login() after rename error = %v", err)
	}

	if _, err := f.service.UpdateUser(ctx, user.ID, UpdateUserInput{Username: strPtr("al")}); KindOf(err) != KindInvalidArgument {
		t.Fatalf("rename without password KindOf() = %q", KindOf(err))
	}
	if _, err := f.service.UpdateUser(ctx, 999, UpdateUserInput{Role: strPtr(catalog.RoleAdmin)}); KindOf(err) != KindNotFound {
		t.Fatalf("missing user KindOf() = %q", KindOf(err))
	}
	if _, err := f.service.UpdateUser(ctx, user.ID, UpdateUserInput{Role: strPtr("root")}); KindOf(err) != KindInvalidArgument {
		t.Fatalf("bad role KindOf() = %q", KindOf(err))
	}
}

func TestRemoveUser(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "alice", "pw", catalog.RoleUser, strPtr(ordersSchema))
	if err := f.service.RemoveUser(context.Background(), "alice"); err != nil {
		t.Fatalf("RemoveUser() error = %v", err)
	}
	if err := f.service.RemoveUser(context.Background(), "alice"); KindOf(err) != KindNotFound {
		t.Fatalf("second RemoveUser() KindOf() = %q", KindOf(err))
	}
}

func TestWarehouseVersion(t *testing.T) {
	f := newFixture(t)
	version, err := f.service.WarehouseVersion(context.Background())
	if err != nil || version == "" {
		t.Fatalf("WarehouseVersion() = %q, %v", version, err)
	}
	f.warehouse.err = errors.New("down")
	if _, err := f.service.WarehouseVersion(context.Background()); KindOf(err) != KindUpstreamFailure {
		t.Fatalf("KindOf() = %q", KindOf(err))
	}
}

func TestKindOfForeignError(t *testing.T) {
	if KindOf(errors.New("x")) != KindInternal {
		t.Fatal("foreign errors should classify as internal")
	}
}
