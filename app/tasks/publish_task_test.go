package tasks

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/lysyi3m/boxd-relay/app/database"
	"github.com/lysyi3m/boxd-relay/app/feed"
	"github.com/lysyi3m/boxd-relay/app/publish"
	"github.com/lysyi3m/boxd-relay/app/summary"
)

const reviewPrefix = "letterboxd-review-"

type fakeSource struct {
	items []feed.SourceItem
	err   error
	calls int
}

func (f *fakeSource) Fetch(ctx context.Context) ([]feed.SourceItem, error) {
	f.calls++
	return f.items, f.err
}

type fakePublisher struct {
	pushes [][]publish.Artifact
	err    error
}

func (f *fakePublisher) Push(ctx context.Context, artifacts []publish.Artifact) error {
	f.pushes = append(f.pushes, artifacts)
	return f.err
}

type failingWriter struct {
	failOn string
}

func (f *failingWriter) WriteAll(artifacts []publish.Artifact) error {
	for _, a := range artifacts {
		if strings.HasSuffix(a.Path, f.failOn) {
			return errors.New("disk full")
		}
	}
	return publish.NewArtifactWriter().WriteAll(artifacts)
}

func sourceItems() []feed.SourceItem {
	base := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
	review := func(id, title string, offset time.Duration) feed.SourceItem {
		return feed.SourceItem{
			GUID:        reviewPrefix + id,
			Title:       title,
			Year:        "1979",
			Rating:      8,
			RawBody:     "<p>" + strings.Repeat(title+" is a tense and patient film. ", 20) + "</p>",
			Link:        "https://letterboxd.com/julien/film/" + strings.ToLower(title) + "/",
			PublishedAt: base.Add(offset),
		}
	}

	return []feed.SourceItem{
		review("A", "Alien", 3*time.Hour),
		review("B", "Brazil", 2*time.Hour),
		{
			GUID:        "letterboxd-list-D",
			Title:       "Favourite sci-fi",
			RawBody:     "<p>A list, not a review at all, with plenty of words.</p>",
			Link:        "https://letterboxd.com/julien/list/sci-fi/",
			PublishedAt: base.Add(4 * time.Hour),
		},
		review("C", "Cube", 1*time.Hour),
	}
}

type fixture struct {
	dir       string
	cachePath string
	source    *fakeSource
	publisher *fakePublisher
	targets   []feed.Target
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	return &fixture{
		dir:       dir,
		cachePath: filepath.Join(dir, "processed.json"),
		source:    &fakeSource{items: sourceItems()},
		publisher: &fakePublisher{},
		targets: []feed.Target{
			{Name: "twitter", MaxChars: 280, LinkReservedChars: 23, Output: "twitter.xml"},
			{Name: "threads", MaxChars: 500, LinkReservedChars: 23, Output: "threads.xml"},
		},
	}
}

func (f *fixture) seed(t *testing.T, ids ...string) {
	t.Helper()
	if err := database.NewFileStore(f.cachePath).Save(context.Background(), ids); err != nil {
		t.Fatalf("Failed to seed cache: %v", err)
	}
}

func (f *fixture) task(t *testing.T, writer ArtifactWriter, opts PublishOptions) *PublishTask {
	t.Helper()

	processed, err := database.LoadProcessedSet(context.Background(), database.NewFileStore(f.cachePath))
	if err != nil {
		t.Fatalf("Failed to load processed set: %v", err)
	}
	if writer == nil {
		writer = publish.NewArtifactWriter()
	}
	opts.OutputDir = f.dir

	return NewPublishTask(Pipeline{
		Source:     f.source,
		Filterer:   feed.NewFilterer(reviewPrefix),
		Cleaner:    feed.NewCleaner(),
		Renderer:   feed.NewRenderer(summary.NewFitter(summary.NewTruncator()), feed.DefaultHashtag),
		Generator:  feed.NewGenerator(),
		History:    feed.NewHistoryReader(),
		Writer:     writer,
		Publisher:  f.publisher,
		Processed:  processed,
		Targets:    f.targets,
		Meta:       feed.FeedMeta{ID: "urn:boxd-relay:julien", Title: "Julien's reviews"},
		Summarizer: "truncation",
	}, opts)
}

func (f *fixture) storedIDs(t *testing.T) []string {
	t.Helper()
	ids, err := database.NewFileStore(f.cachePath).Load(context.Background())
	if err != nil {
		t.Fatalf("Failed to load cache: %v", err)
	}
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	return sorted
}

func (f *fixture) artifact(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(f.dir, name))
	if err != nil {
		t.Fatalf("Failed to read artifact %s: %v", name, err)
	}
	return string(data)
}

func ids(suffixes ...string) []string {
	out := make([]string, 0, len(suffixes))
	for _, s := range suffixes {
		out = append(out, reviewPrefix+s)
	}
	return out
}

func TestPublishTask_FirstRun(t *testing.T) {
	f := newFixture(t)
	f.targets = f.targets[:1]
	task := f.task(t, nil, PublishOptions{})

	if err := task.Execute(context.Background()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	report := task.LastReport()
	if report.Stage != StageDone {
		t.Errorf("Expected stage done, got %s", report.Stage)
	}
	if report.Rendered != 3 {
		t.Errorf("Expected 3 rendered entries, got %d", report.Rendered)
	}

	doc := f.artifact(t, "twitter.xml")
	if n := strings.Count(doc, "<entry>"); n != 3 {
		t.Errorf("Expected 3 entries in feed, got %d", n)
	}
	if strings.Contains(doc, "letterboxd-list-D") {
		t.Error("Expected non-review item to be excluded")
	}
	if !strings.Contains(doc, reviewPrefix+"A#twitter") {
		t.Error("Expected entry id with target suffix")
	}

	if got := f.storedIDs(t); !reflect.DeepEqual(got, ids("A", "B", "C")) {
		t.Errorf("Expected processed set %v, got %v", ids("A", "B", "C"), got)
	}
	if len(f.publisher.pushes) != 1 {
		t.Errorf("Expected 1 push, got %d", len(f.publisher.pushes))
	}
}

func TestPublishTask_EntriesFitBudget(t *testing.T) {
	f := newFixture(t)
	task := f.task(t, nil, PublishOptions{})

	if err := task.Execute(context.Background()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	for _, artifact := range f.publisher.pushes[0] {
		history, err := feed.NewHistoryReader().Run(artifact.Path, f.targetFor(artifact.Path))
		if err != nil {
			t.Fatalf("Expected readable artifact, got %v", err)
		}
		for id, entry := range history {
			limit := f.targetFor(artifact.Path).MaxChars
			if summary.Len(entry.Text) > limit {
				t.Errorf("Expected %s to fit %d chars, got %d", id, limit, summary.Len(entry.Text))
			}
		}
	}
}

func (f *fixture) targetFor(path string) feed.Target {
	for _, target := range f.targets {
		if filepath.Base(path) == target.Output {
			return target
		}
	}
	return feed.Target{}
}

func TestPublishTask_SecondRunRendersNothing(t *testing.T) {
	f := newFixture(t)
	task := f.task(t, nil, PublishOptions{})

	if err := task.Execute(context.Background()); err != nil {
		t.Fatalf("Expected no error on first run, got %v", err)
	}
	first := f.artifact(t, "threads.xml")

	if err := task.Execute(context.Background()); err != nil {
		t.Fatalf("Expected no error on second run, got %v", err)
	}

	report := task.LastReport()
	if report.Rendered != 0 {
		t.Errorf("Expected 0 rendered entries, got %d", report.Rendered)
	}
	if report.Carried != 6 {
		t.Errorf("Expected 6 carried entries across both targets, got %d", report.Carried)
	}

	second := f.artifact(t, "threads.xml")
	if n := strings.Count(second, "<entry>"); n != 3 {
		t.Errorf("Expected historical entries kept in feed, got %d", n)
	}
	for _, id := range ids("A", "B", "C") {
		if strings.Contains(first, id) != strings.Contains(second, id) {
			t.Errorf("Expected %s presence unchanged between runs", id)
		}
	}
}

func TestPublishTask_ProcessedIdsNeverRerendered(t *testing.T) {
	f := newFixture(t)
	if err := f.task(t, nil, PublishOptions{}).Execute(context.Background()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	// fresh process, state only from the durable cache
	task := f.task(t, nil, PublishOptions{})
	if err := task.Execute(context.Background()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if task.LastReport().Rendered != 0 {
		t.Errorf("Expected 0 rendered entries, got %d", task.LastReport().Rendered)
	}
}

func TestPublishTask_DroppedItemsLeaveFeed(t *testing.T) {
	f := newFixture(t)
	task := f.task(t, nil, PublishOptions{})
	if err := task.Execute(context.Background()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	f.source.items = f.source.items[:2]
	if err := task.Execute(context.Background()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	doc := f.artifact(t, "twitter.xml")
	if strings.Contains(doc, reviewPrefix+"C") {
		t.Error("Expected review dropped from the source window to leave the feed")
	}
	if n := strings.Count(doc, "<entry>"); n != 2 {
		t.Errorf("Expected 2 entries, got %d", n)
	}
}

func TestPublishTask_WriteFailureLeavesCacheUntouched(t *testing.T) {
	f := newFixture(t)
	f.seed(t, ids("B")...)
	task := f.task(t, &failingWriter{failOn: "threads.xml"}, PublishOptions{})
	before := task.Processed().IDs()

	err := task.Execute(context.Background())

	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != StageWriting {
		t.Fatalf("Expected writing stage error, got %v", err)
	}
	if !reflect.DeepEqual(task.Processed().IDs(), before) {
		t.Errorf("Expected in-memory set %v, got %v", before, task.Processed().IDs())
	}
	if got := f.storedIDs(t); !reflect.DeepEqual(got, ids("B")) {
		t.Errorf("Expected stored set %v, got %v", ids("B"), got)
	}
	if len(f.publisher.pushes) != 0 {
		t.Error("Expected no push after write failure")
	}
	if _, err := os.Stat(filepath.Join(f.dir, "twitter.xml")); !os.IsNotExist(err) {
		t.Error("Expected no artifact written")
	}
}

func TestPublishTask_OutputDirUnwritable(t *testing.T) {
	f := newFixture(t)
	task := f.task(t, nil, PublishOptions{})
	blocker := filepath.Join(f.dir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}
	task.opts.OutputDir = filepath.Join(blocker, "feeds")

	err := task.Execute(context.Background())

	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != StageWriting {
		t.Fatalf("Expected writing stage error, got %v", err)
	}
	if got := f.storedIDs(t); len(got) != 0 {
		t.Errorf("Expected empty stored set, got %v", got)
	}
}

func TestPublishTask_FetchFailure(t *testing.T) {
	f := newFixture(t)
	f.source.err = errors.New("connection refused")
	task := f.task(t, nil, PublishOptions{})

	err := task.Execute(context.Background())

	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != StageFetching {
		t.Fatalf("Expected fetching stage error, got %v", err)
	}
	if report := task.LastReport(); !report.Failed || report.Stage != StageFetching {
		t.Errorf("Expected failed report at fetching, got %+v", report)
	}
	if _, err := os.Stat(f.cachePath); !os.IsNotExist(err) {
		t.Error("Expected cache not to be written")
	}
}

func TestPublishTask_PushFailureKeepsCommit(t *testing.T) {
	f := newFixture(t)
	f.publisher.err = errors.New("remote rejected")
	task := f.task(t, nil, PublishOptions{})

	err := task.Execute(context.Background())

	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != StagePushing {
		t.Fatalf("Expected pushing stage error, got %v", err)
	}
	if got := f.storedIDs(t); !reflect.DeepEqual(got, ids("A", "B", "C")) {
		t.Errorf("Expected committed set %v, got %v", ids("A", "B", "C"), got)
	}
	if !task.LastReport().Committed {
		t.Error("Expected report to record the commit")
	}
}

func TestPublishTask_ClearCache(t *testing.T) {
	f := newFixture(t)
	f.seed(t, append(ids("A", "B", "C"), "letterboxd-review-gone")...)
	task := f.task(t, nil, PublishOptions{ClearCache: true})

	if err := task.Execute(context.Background()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if task.LastReport().Rendered != 3 {
		t.Errorf("Expected 3 rendered after clear, got %d", task.LastReport().Rendered)
	}
	if got := f.storedIDs(t); !reflect.DeepEqual(got, ids("A", "B", "C")) {
		t.Errorf("Expected stored set %v, got %v", ids("A", "B", "C"), got)
	}

	if err := task.Execute(context.Background()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if task.LastReport().Rendered != 0 {
		t.Errorf("Expected clear to apply to the first run only, got %d rendered", task.LastReport().Rendered)
	}
}

func TestPublishTask_ClearCacheNotPersistedOnFailure(t *testing.T) {
	f := newFixture(t)
	f.seed(t, ids("A")...)
	task := f.task(t, &failingWriter{failOn: "twitter.xml"}, PublishOptions{ClearCache: true})

	if err := task.Execute(context.Background()); err == nil {
		t.Fatal("Expected write failure")
	}
	if got := f.storedIDs(t); !reflect.DeepEqual(got, ids("A")) {
		t.Errorf("Expected stored set %v, got %v", ids("A"), got)
	}
}

func TestPublishTask_LimitCommits(t *testing.T) {
	f := newFixture(t)
	f.seed(t, ids("A")...)
	task := f.task(t, nil, PublishOptions{Limit: 2})

	if err := task.Execute(context.Background()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	report := task.LastReport()
	if report.Selected != 2 || report.Rendered != 2 {
		t.Errorf("Expected 2 selected and rendered, got %d and %d", report.Selected, report.Rendered)
	}
	doc := f.artifact(t, "twitter.xml")
	if !strings.Contains(doc, reviewPrefix+"A#") || !strings.Contains(doc, reviewPrefix+"B#") {
		t.Error("Expected the two newest reviews in the feed")
	}
	if got := f.storedIDs(t); !reflect.DeepEqual(got, ids("A", "B")) {
		t.Errorf("Expected stored set %v, got %v", ids("A", "B"), got)
	}
}

func TestPublishTask_LimitSkipCommit(t *testing.T) {
	f := newFixture(t)
	task := f.task(t, nil, PublishOptions{Limit: 1, LimitSkipCommit: true})

	if err := task.Execute(context.Background()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if task.LastReport().Committed {
		t.Error("Expected no commit in limit skip-commit mode")
	}
	if _, err := os.Stat(f.cachePath); !os.IsNotExist(err) {
		t.Error("Expected cache file not to be written")
	}
	if len(f.publisher.pushes) != 1 {
		t.Errorf("Expected artifacts pushed, got %d pushes", len(f.publisher.pushes))
	}
}

func TestPublishTask_ShortReviewMarkedButNotPublished(t *testing.T) {
	f := newFixture(t)
	f.source.items = append(f.source.items, feed.SourceItem{
		GUID:        reviewPrefix + "E",
		Title:       "Eraserhead",
		Rating:      feed.NoRating,
		RawBody:     "<p>Yes.</p>",
		Link:        "https://letterboxd.com/julien/film/eraserhead/",
		PublishedAt: time.Date(2025, 1, 10, 20, 0, 0, 0, time.UTC),
	})
	task := f.task(t, nil, PublishOptions{})

	if err := task.Execute(context.Background()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if task.LastReport().SkippedShort != 1 {
		t.Errorf("Expected 1 short review skipped, got %d", task.LastReport().SkippedShort)
	}
	if strings.Contains(f.artifact(t, "twitter.xml"), reviewPrefix+"E") {
		t.Error("Expected short review not to be published")
	}
	if !task.Processed().Contains(reviewPrefix + "E") {
		t.Error("Expected short review to be marked processed")
	}
}

func TestPublishTask_RenderFailureSkipsItemOnly(t *testing.T) {
	f := newFixture(t)
	f.source.items[0].Link = ""
	task := f.task(t, nil, PublishOptions{})

	if err := task.Execute(context.Background()); err != nil {
		t.Fatalf("Expected render failure not to fail the run, got %v", err)
	}

	report := task.LastReport()
	if report.RenderErrors != 1 || report.Rendered != 2 {
		t.Errorf("Expected 1 render error and 2 rendered, got %d and %d", report.RenderErrors, report.Rendered)
	}
	if task.Processed().Contains(reviewPrefix + "A") {
		t.Error("Expected failed item not to be marked processed")
	}
	for _, name := range []string{"twitter.xml", "threads.xml"} {
		if strings.Contains(f.artifact(t, name), reviewPrefix+"A#") {
			t.Errorf("Expected failed item absent from %s", name)
		}
	}
}

func TestPublishTask_CancelledContext(t *testing.T) {
	f := newFixture(t)
	task := f.task(t, nil, PublishOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := task.Execute(ctx)
	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != StageRendering {
		t.Fatalf("Expected rendering stage error, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if task.Processed().Len() != 0 {
		t.Error("Expected processed set untouched")
	}
}

func TestStageError_Message(t *testing.T) {
	err := &StageError{Stage: StagePushing, Err: errors.New("boom")}
	if err.Error() != "pushing failed: boom" {
		t.Errorf("Expected 'pushing failed: boom', got '%s'", err.Error())
	}
}

func TestPublishTask_EachRunHasOwnID(t *testing.T) {
	f := newFixture(t)
	task := f.task(t, nil, PublishOptions{})

	if err := task.Execute(context.Background()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	first := task.LastReport()

	if err := task.Execute(context.Background()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	second := task.LastReport()

	if first.RunID == "" || first.RunID == second.RunID {
		t.Errorf("Expected distinct run ids, got '%s' and '%s'", first.RunID, second.RunID)
	}
	if first.TaskID != second.TaskID {
		t.Errorf("Expected the same task id, got '%s' and '%s'", first.TaskID, second.TaskID)
	}
}
