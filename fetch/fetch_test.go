package fetch_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/fathomdata/s3sign/fetch"
)

type FetchTestSuite struct {
	suite.Suite
}

func (s *FetchTestSuite) TestFetchReturnsStatusAndBody() {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.Equal("bar", r.Header.Get("X-Foo"))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("hello"))
	}))
	defer srv.Close()

	f := fetch.NewHTTPFetcher(5 * time.Second)
	resp, err := f.Fetch(context.Background(), fetch.Request{
		Method:  http.MethodGet,
		URL:     srv.URL,
		Headers: map[string]string{"X-Foo": "bar"},
	})
	s.Require().NoError(err)
	s.Equal(http.StatusCreated, resp.Status)
	s.Equal("hello", string(resp.Body))
	s.Empty(resp.ErrText)
}

func (s *FetchTestSuite) TestFetchPerRequestTimeout() {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := fetch.NewHTTPFetcher(5 * time.Second)
	_, err := f.Fetch(context.Background(), fetch.Request{
		Method:  http.MethodGet,
		URL:     srv.URL,
		Timeout: 1 * time.Millisecond,
	})
	s.Error(err)
}

func (s *FetchTestSuite) TestFetchErrorSetsErrText() {
	f := fetch.NewHTTPFetcher(time.Second)
	resp, err := f.Fetch(context.Background(), fetch.Request{
		Method: http.MethodGet,
		URL:    "http://127.0.0.1:1", // nothing listens here
	})
	s.Error(err)
	s.NotEmpty(resp.ErrText)
}

func TestFetchTestSuite(t *testing.T) {
	suite.Run(t, new(FetchTestSuite))
}
