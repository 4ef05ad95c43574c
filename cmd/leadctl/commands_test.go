package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"leadflow/internal/app"
	"leadflow/internal/pricing"
	"leadflow/internal/store"
)

func runCLI(t *testing.T, c *cli, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	c.out = &out
	root := newRootCmd(c)
	root.SetArgs(args)
	root.SetErr(&bytes.Buffer{})
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func memoryCLI(t *testing.T) (*cli, *store.MemoryStore) {
	t.Helper()
	memory := store.NewMemoryStore()
	c := &cli{
		tables: pricing.DefaultTables(),
		connect: func(context.Context) (*app.Service, func(), error) {
			return app.New(memory, app.Options{}), func() {}, nil
		},
	}
	return c, memory
}

func TestEstimateCommand(t *testing.T) {
	c, _ := memoryCLI(t)

	out, err := runCLI(t, c, "estimate", "--pages", "4", "--content", "light_editing", "--features", "gallery")
	require.NoError(t, err)

	var estimate pricing.Estimate
	require.NoError(t, json.Unmarshal([]byte(out), &estimate))
	require.Equal(t, pricing.TableChecklist, estimate.Table)
	require.Equal(t, 1200, estimate.Total)

	out, err = runCLI(t, c, "estimate", "--table", "slider", "--pages", "2", "--rush")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &estimate))
	require.Equal(t, 850, estimate.Total)
	require.Equal(t, 765, estimate.Low)

	_, err = runCLI(t, c, "estimate", "--table", "abacus")
	require.Error(t, err)
	_, err = runCLI(t, c, "estimate", "--features", "chatbot")
	require.Error(t, err)
}

func TestNormalizeCommand(t *testing.T) {
	c, _ := memoryCLI(t)
	dir := t.TempDir()

	quote := filepath.Join(dir, "quote.json")
	require.NoError(t, os.WriteFile(quote, []byte(`{"Name":"Jane","E-mail":"JANE@x.com","pages":"2 pages"}`), 0o600))
	out, err := runCLI(t, c, "normalize", "--source", "quote", quote)
	require.NoError(t, err)
	require.Contains(t, out, `"email": "jane@x.com"`)
	require.Contains(t, out, `"total": 650`)

	final := filepath.Join(dir, "final.txt")
	require.NoError(t, os.WriteFile(final, []byte("Done!\n{\"name\":\"Sam\",\"email\":\"sam@example.com\",\"fit\":\"borderline\"}"), 0o600))
	out, err = runCLI(t, c, "normalize", "--source", "ai_intake", final)
	require.NoError(t, err)
	require.Contains(t, out, `"kanbanStage": "new"`)
	require.Contains(t, out, `"fitStatus": "borderline"`)

	_, err = runCLI(t, c, "normalize", "--source", "contact", filepath.Join(dir, "missing.json"))
	require.Error(t, err)
}

func seedCLIClient(t *testing.T, memory *store.MemoryStore) store.Client {
	t.Helper()
	client := store.Client{
		ID:            "cl_1",
		Email:         "c@example.com",
		Name:          "Client",
		PipelineStage: "lead",
		PlanType:      store.PlanBuildOnly,
		Active:        true,
		CreatedAt:     time.Now().UTC(),
	}
	require.NoError(t, memory.InsertClient(context.Background(), client))
	return client
}

func TestStageCommand(t *testing.T) {
	c, memory := memoryCLI(t)
	client := seedCLIClient(t, memory)

	out, err := runCLI(t, c, "stage", "client", client.ID, "build")
	require.NoError(t, err)
	require.Contains(t, out, "client cl_1: lead -> build (pending)")
	require.Contains(t, out, "confirmed build")

	stored, err := memory.GetClient(context.Background(), client.ID)
	require.NoError(t, err)
	require.Equal(t, "build", stored.PipelineStage)

	out, err = runCLI(t, c, "stage", "client", client.ID, "build")
	require.NoError(t, err)
	require.Contains(t, out, "already in build")
}

func TestStageCommandRollsBack(t *testing.T) {
	c, memory := memoryCLI(t)
	client := seedCLIClient(t, memory)

	out, err := runCLI(t, c, "stage", "client", client.ID, "archived")
	require.Error(t, err)
	require.True(t, app.IsCode(err, app.CodeValidation))
	require.Contains(t, out, "rolled back to lead")

	_, err = runCLI(t, c, "stage", "invoice", "x", "lead")
	require.Error(t, err)
}

func TestConvertCommand(t *testing.T) {
	c, memory := memoryCLI(t)
	ctx := context.Background()
	lead := store.Lead{
		ID:        "ld_1",
		Name:      "Jane",
		Email:     "jane@x.com",
		Source:    "contact",
		Status:    store.LeadStatusNew,
		FitStatus: store.FitGood,
		Features:  []string{},
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, memory.InsertLead(ctx, lead))

	out, err := runCLI(t, c, "convert", "lead", "ld_1")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "created client cl_"), out)

	out, err = runCLI(t, c, "convert", "lead", "ld_1")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "reused client cl_"), out)

	_, err = runCLI(t, c, "convert", "lead", "ld_missing")
	require.True(t, app.IsCode(err, app.CodeNotFound))
}
