package qa

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/tubeqa/internal/models"
	"github.com/xhad/tubeqa/pkg/llm"
	"github.com/xhad/tubeqa/pkg/processor"
	"github.com/xhad/tubeqa/pkg/store"
)

const videoURL = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"

// bagEmbedder hashes words into a small vector so similar text is close.
type bagEmbedder struct {
	mu    sync.Mutex
	calls int
}

func (b *bagEmbedder) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, 32)
		for _, w := range strings.Fields(strings.ToLower(text)) {
			h := fnv.New32a()
			h.Write([]byte(strings.Trim(w, ".,?!")))
			v[h.Sum32()%32]++
		}
		out[i] = v
	}
	return out, nil
}

type fakeChat struct {
	answer    string
	err       error
	questions []string
	chunks    [][]models.Chunk
	histories [][]llm.Turn
}

func (f *fakeChat) Chat(ctx context.Context, question string, chunks []models.Chunk, history []llm.Turn) (string, error) {
	f.questions = append(f.questions, question)
	f.chunks = append(f.chunks, chunks)
	f.histories = append(f.histories, history)
	return f.answer, f.err
}

type fakeSource struct {
	transcript string
	title      string
	err        error
	calls      int
}

func (f *fakeSource) Transcript(ctx context.Context, videoURL string) (string, error) {
	f.calls++
	return f.transcript, f.err
}

func (f *fakeSource) Title(ctx context.Context, videoURL string) (string, error) {
	if f.title == "" {
		return "", errors.New("no title")
	}
	return f.title, nil
}

type fakeWiki struct {
	answers map[string]string
	queries []string
}

func (f *fakeWiki) Summary(ctx context.Context, query string) (string, error) {
	f.queries = append(f.queries, query)
	if ans, ok := f.answers[query]; ok {
		return ans, nil
	}
	return "", errors.New("not found")
}

type fixture struct {
	engine *Engine
	chat   *fakeChat
	source *fakeSource
	wiki   *fakeWiki
	emb    *bagEmbedder
	store  *store.MemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		chat:   &fakeChat{answer: "The video is about gophers digging tunnels."},
		source: &fakeSource{transcript: "gophers dig tunnels\nthey live underground\nthe end"},
		wiki:   &fakeWiki{answers: map[string]string{}},
		emb:    &bagEmbedder{},
		store:  store.NewMemoryStore(),
	}
	proc := processor.NewWithConfig(processor.ProcessorConfig{ChunkSize: 40, ChunkOverlap: 5})
	engine, err := NewEngine(Config{SearchLimit: 2}, Deps{
		Store:     f.store,
		Embedder:  f.emb,
		Processor: &proc,
		Chat:      f.chat,
		Source:    f.source,
		Wiki:      f.wiki,
	})
	require.NoError(t, err)
	f.engine = engine
	return f
}

func TestAskValidatesInput(t *testing.T) {
	f := newFixture(t)

	for _, in := range []Input{
		{VideoURL: videoURL},
		{Question: "  ", Transcript: "text"},
		{Question: "what?"},
	} {
		_, err := f.engine.Ask(context.Background(), in)
		assert.ErrorIs(t, err, ErrMissingInput)
	}
	assert.Equal(t, "Missing video_url and/or transcript/question.", ErrMissingInput.Error())
}

func TestAskFetchesAndIndexesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	answer, err := f.engine.Ask(ctx, Input{VideoURL: videoURL, Question: "Where do gophers live?"})
	require.NoError(t, err)
	assert.Equal(t, "The video is about gophers digging tunnels.", answer)

	has, err := f.store.HasVideo(ctx, "dQw4w9WgXcQ")
	require.NoError(t, err)
	assert.True(t, has)

	_, err = f.engine.Ask(ctx, Input{VideoURL: videoURL, Question: "Anything else?"})
	require.NoError(t, err)
	assert.Equal(t, 1, f.source.calls, "transcript is fetched only once per video")

	require.Len(t, f.chat.chunks, 2)
	assert.LessOrEqual(t, len(f.chat.chunks[0]), 2)
	assert.NotEmpty(t, f.chat.chunks[0])
}

func TestAskUsesSuppliedTranscript(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Ask(context.Background(), Input{
		Transcript: "cats sleep all day\ncats purr",
		Question:   "What do cats do?",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, f.source.calls)
	require.Len(t, f.chat.chunks, 1)
	assert.Contains(t, f.chat.chunks[0][0].Content, "cats")
	assert.True(t, strings.HasPrefix(f.chat.chunks[0][0].VideoID, "transcript-"))
}

func TestAskSummaryQuestionUsesSummaryPrompt(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Ask(context.Background(), Input{VideoURL: videoURL, Question: "What is this video about?"})
	require.NoError(t, err)
	require.Len(t, f.chat.questions, 1)
	assert.Equal(t, llm.SummaryQuestion, f.chat.questions[0])
}

func TestAskKeepsSessionHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Ask(ctx, Input{VideoURL: videoURL, Question: "first?", SessionID: "s1"})
	require.NoError(t, err)
	_, err = f.engine.Ask(ctx, Input{VideoURL: videoURL, Question: "second?", SessionID: "s1"})
	require.NoError(t, err)
	_, err = f.engine.Ask(ctx, Input{VideoURL: videoURL, Question: "other?", SessionID: "s2"})
	require.NoError(t, err)

	require.Len(t, f.chat.histories, 3)
	assert.Empty(t, f.chat.histories[0])
	require.Len(t, f.chat.histories[1], 1)
	assert.Equal(t, "first?", f.chat.histories[1][0].Question)
	assert.Empty(t, f.chat.histories[2])
}

func TestAskVagueAnswerFallsBackToWikipedia(t *testing.T) {
	f := newFixture(t)
	f.chat.answer = "I don't know."
	f.wiki.answers["Who is Rick Astley?"] = "According to Wikipedia:\nRick Astley is a singer."

	answer, err := f.engine.Ask(context.Background(), Input{VideoURL: videoURL, Question: "Who is Rick Astley?"})
	require.NoError(t, err)
	assert.Equal(t, "According to Wikipedia:\nRick Astley is a singer.", answer)
	assert.Equal(t, []string{"Who is Rick Astley?"}, f.wiki.queries, "title lookup only runs when the transcript path failed")
}

func TestAskMissingTranscriptTriesTitleThenShortTitle(t *testing.T) {
	f := newFixture(t)
	f.source.transcript = ""
	f.source.title = "Gopher Facts | Nature Channel"
	f.wiki.answers["Gopher Facts"] = "According to Wikipedia:\nGophers are rodents."

	answer, err := f.engine.Ask(context.Background(), Input{VideoURL: videoURL, Question: "What is this?"})
	require.NoError(t, err)
	assert.Equal(t, "According to Wikipedia:\nGophers are rodents.", answer)
	assert.Equal(t, []string{"Gopher Facts | Nature Channel", "Gopher Facts"}, f.wiki.queries)
	assert.Empty(t, f.chat.questions)
}

func TestAskQuestionTopicFallback(t *testing.T) {
	f := newFixture(t)
	f.chat.err = errors.New("llm down")
	f.wiki.answers["quantum computing"] = "According to Wikipedia:\nQuantum computing uses qubits."

	answer, err := f.engine.Ask(context.Background(), Input{VideoURL: videoURL, Question: "What is quantum computing?"})
	require.NoError(t, err)
	assert.Equal(t, "According to Wikipedia:\nQuantum computing uses qubits.", answer)
}

func TestAskEndsWithSearchLinks(t *testing.T) {
	f := newFixture(t)
	f.source.err = errors.New("captions disabled")

	answer, err := f.engine.Ask(context.Background(), Input{VideoURL: videoURL, Question: "What is love?"})
	require.NoError(t, err)
	assert.Equal(t, WebSearchLinks("What is love?"), answer)
	assert.Contains(t, answer, "https://www.google.com/search?q=What+is+love%3F")
}

func TestNewEngineRequiresDeps(t *testing.T) {
	_, err := NewEngine(Config{}, Deps{})
	assert.Error(t, err)
}

func TestFallbackHelpers(t *testing.T) {
	assert.True(t, IsSummaryQuestion("Can you SUMMARIZE it"))
	assert.True(t, IsSummaryQuestion("what is the main topic here"))
	assert.False(t, IsSummaryQuestion("who sings?"))

	assert.True(t, IsIncomplete("short"))
	assert.True(t, IsIncomplete("Unfortunately the transcript is silent."))
	assert.False(t, IsIncomplete("Gophers dig tunnels."))

	assert.Equal(t, "Gopher Facts", TitleTopic("Gopher Facts - Part 1 | Nature"))
	assert.Equal(t, "plain", TitleTopic("plain"))

	assert.Equal(t, "quantum computing", QuestionTopic("What is quantum computing?"))
	assert.Equal(t, "gophers eat", QuestionTopic("what do gophers eat"))
	assert.Equal(t, "Why?", QuestionTopic("Why?"))
}

func TestMemoryBounded(t *testing.T) {
	m := NewMemory(2)
	for _, q := range []string{"a", "b", "c"} {
		m.Append("s", llm.Turn{Question: q})
	}
	h := m.History("s")
	require.Len(t, h, 2)
	assert.Equal(t, "b", h[0].Question)

	m.Reset("s")
	assert.Empty(t, m.History("s"))
}

type recordingStore struct {
	*store.MemoryStore
	docs []models.ProcessedDocument
}

func (r *recordingStore) Store(ctx context.Context, doc models.ProcessedDocument) error {
	r.docs = append(r.docs, doc)
	return r.MemoryStore.Store(ctx, doc)
}

func TestAskIndexesVideoTitle(t *testing.T) {
	f := newFixture(t)
	f.source.title = "Gopher Facts"
	rec := &recordingStore{MemoryStore: f.store}
	f.engine.store = rec

	_, err := f.engine.Ask(context.Background(), Input{VideoURL: videoURL, Question: "Where do gophers live?"})
	require.NoError(t, err)
	require.Len(t, rec.docs, 1)
	assert.Equal(t, "Gopher Facts", rec.docs[0].Title)
	assert.Equal(t, videoURL, rec.docs[0].URL)
}

type streamingChat struct {
	*fakeChat
	pieces []string
}

func (s *streamingChat) ChatStream(ctx context.Context, question string, chunks []models.Chunk, history []llm.Turn, onChunk func(string)) (string, error) {
	for _, p := range s.pieces {
		onChunk(p)
	}
	return s.Chat(ctx, question, chunks, history)
}

func TestAskStreamsWhenRequested(t *testing.T) {
	f := newFixture(t)
	chat := &streamingChat{fakeChat: f.chat, pieces: []string{"The video ", "is about gophers."}}
	f.engine.chat = chat

	var got []string
	answer, err := f.engine.Ask(context.Background(), Input{
		VideoURL: videoURL,
		Question: "Where do gophers live?",
		OnToken:  func(s string) { got = append(got, s) },
	})
	require.NoError(t, err)
	assert.Equal(t, "The video is about gophers digging tunnels.", answer)
	assert.Equal(t, chat.pieces, got)

	got = nil
	_, err = f.engine.Ask(context.Background(), Input{VideoURL: videoURL, Question: "And then?"})
	require.NoError(t, err)
	assert.Empty(t, got)
}
