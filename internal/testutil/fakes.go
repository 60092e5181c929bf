// Package testutil holds test doubles and fixtures shared by package tests.
package testutil

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/tmc/langchaingo/llms"
)

const hashDims = 1024

// vocabulary gives every distinct word its own dimension so that test texts
// never collide. It is shared by all embedders in the process: vectors written
// by one HashEmbedder stay comparable with queries from another.
var vocabulary = struct {
	sync.Mutex
	index map[string]int
}{index: map[string]int{}}

func wordDim(w string) int {
	vocabulary.Lock()
	defer vocabulary.Unlock()
	if d, ok := vocabulary.index[w]; ok {
		return d
	}
	d := 1 + len(vocabulary.index)
	if d >= hashDims {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		d = 1 + int(h.Sum32()%(hashDims-1))
	}
	vocabulary.index[w] = d
	return d
}

// HashEmbedder embeds text as a bag of lowercase words.
// Texts sharing words get similar vectors.
type HashEmbedder struct {
	DocumentCalls atomic.Int32
	QueryCalls    atomic.Int32
	// Err fails every call. QueryErr fails only EmbedQuery.
	Err      error
	QueryErr error
}

func (e *HashEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	e.DocumentCalls.Add(1)
	if e.Err != nil {
		return nil, e.Err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = hashVector(t)
	}
	return out, nil
}

func (e *HashEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	e.QueryCalls.Add(1)
	if e.Err != nil {
		return nil, e.Err
	}
	if e.QueryErr != nil {
		return nil, e.QueryErr
	}
	return hashVector(text), nil
}

func hashVector(text string) []float32 {
	v := make([]float32, hashDims)
	// constant component keeps the vector non-zero
	v[0] = 0.1
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,;:!?\"'()")
		if w == "" {
			continue
		}
		v[wordDim(w)]++
	}
	return v
}

// WordTokenizer treats each whitespace separated word as one token.
type WordTokenizer struct {
	mu    sync.Mutex
	vocab []string
	index map[string]int
}

func (t *WordTokenizer) Encode(text string, _ []string, _ []string) []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.index == nil {
		t.index = map[string]int{}
	}
	var tokens []int
	for _, w := range strings.Fields(text) {
		id, ok := t.index[w]
		if !ok {
			id = len(t.vocab)
			t.vocab = append(t.vocab, w)
			t.index[w] = id
		}
		tokens = append(tokens, id)
	}
	return tokens
}

func (t *WordTokenizer) Decode(tokens []int) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	words := make([]string, len(tokens))
	for i, id := range tokens {
		words[i] = t.vocab[id]
	}
	return strings.Join(words, " ")
}

// FakeLLM is an llms.Model that answers through Respond and records every prompt.
type FakeLLM struct {
	mu      sync.Mutex
	Prompts []string
	Options []llms.CallOptions
	// Respond builds the reply to a prompt. A nil Respond replies "ok".
	Respond func(prompt string) (string, error)
}

func (f *FakeLLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	var prompt strings.Builder
	for _, m := range messages {
		for _, part := range m.Parts {
			if text, ok := part.(llms.TextContent); ok {
				prompt.WriteString(text.Text)
			}
		}
	}
	var opts llms.CallOptions
	for _, o := range options {
		o(&opts)
	}

	f.mu.Lock()
	f.Prompts = append(f.Prompts, prompt.String())
	f.Options = append(f.Options, opts)
	f.mu.Unlock()

	reply := "ok"
	if f.Respond != nil {
		var err error
		reply, err = f.Respond(prompt.String())
		if err != nil {
			return nil, err
		}
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: reply}}}, nil
}

func (f *FakeLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

// Calls returns the number of generation requests made.
func (f *FakeLLM) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Prompts)
}

// ErrFake is returned by fakes configured to fail.
var ErrFake = errors.New("fake failure")
