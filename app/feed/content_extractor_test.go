package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const articleHTML = `
<!DOCTYPE html>
<html>
<head>
	<title>Test Article</title>
</head>
<body>
	<header>
		<h1>Site Header</h1>
		<nav>Navigation</nav>
	</header>
	<main>
		<article>
			<h1>Main Article Title</h1>
			<p>This is the main content of the article. It contains several paragraphs of meaningful text that should be extracted by the readability algorithm.</p>
			<p>This is another paragraph with more content. The readability algorithm should identify this as the main content area and extract it properly.</p>
			<p>Here is some more substantial content to ensure we meet the character threshold. This paragraph adds more context and information that would be valuable to readers.</p>
		</article>
	</main>
	<footer>
		<p>Copyright 2024</p>
	</footer>
</body>
</html>
`

func TestContentExtractor_Run_ValidHTML(t *testing.T) {
	extractor := NewContentExtractor(nil)

	result, err := extractor.Run([]byte(articleHTML), nil)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if !strings.Contains(result, "main content of the article") {
		t.Errorf("Expected extracted content to contain main article text, got: %s", result)
	}
}

func TestContentExtractor_Run_EmptyData(t *testing.T) {
	extractor := NewContentExtractor(nil)

	if _, err := extractor.Run(nil, nil); err == nil {
		t.Error("Expected error for empty data")
	}
}

func TestContentExtractor_Extract(t *testing.T) {
	var gotUserAgent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserAgent = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(articleHTML))
	}))
	defer server.Close()

	extractor := NewContentExtractor(NewFetcher(server.Client(), "Test Agent", 5*time.Second))

	result, err := extractor.Extract(context.Background(), server.URL+"/article")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if gotUserAgent != "Test Agent" {
		t.Errorf("Expected user agent 'Test Agent', got '%s'", gotUserAgent)
	}
	if !strings.Contains(result, "another paragraph") {
		t.Errorf("Expected extracted content to contain article text")
	}
}

func TestContentExtractor_Extract_RejectsNonHTML(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4"))
	}))
	defer server.Close()

	extractor := NewContentExtractor(NewFetcher(server.Client(), "", 0))

	if _, err := extractor.Extract(context.Background(), server.URL); err == nil {
		t.Error("Expected error for non-HTML content")
	}
}

func TestContentExtractor_Extract_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	extractor := NewContentExtractor(NewFetcher(server.Client(), "", 0))

	_, err := extractor.Extract(context.Background(), server.URL)
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("Expected 404 error, got: %v", err)
	}
}

func TestContentExtractor_Extract_MissingLink(t *testing.T) {
	extractor := NewContentExtractor(NewFetcher(nil, "", 0))

	if _, err := extractor.Extract(context.Background(), ""); err == nil {
		t.Error("Expected error for missing link")
	}
}
