package restore

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func soapResponse(op, result string) string {
	return `<?xml version="1.0" encoding="utf-8"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
  <soap:Body>
    <` + op + `Response xmlns="http://tempuri.org/">
      <` + op + `Result>` + result + `</` + op + `Result>
    </` + op + `Response>
  </soap:Body>
</soap:Envelope>`
}

const soapFault = `<?xml version="1.0" encoding="utf-8"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
  <soap:Body>
    <soap:Fault>
      <faultcode>soap:Server</faultcode>
      <faultstring>archive offline</faultstring>
    </soap:Fault>
  </soap:Body>
</soap:Envelope>`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := New(Config{
		URL:      srv.URL,
		User:     "survey",
		Password: "secret",
		Beams:    1,
		Bits:     4,
		FileType: "wapp",
		RetryMax: 1,
	})
	c.http.RetryWaitMin = time.Millisecond
	c.http.RetryWaitMax = time.Millisecond
	return c
}

func TestRequestRestore_ReturnsGUID(t *testing.T) {
	var body, action string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		action = r.Header.Get("SOAPAction")
		io.WriteString(w, soapResponse("Restore", "9818e194a5db4f4d90aa706826d69907"))
	})

	guid, err := c.RequestRestore(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if guid != "9818e194a5db4f4d90aa706826d69907" {
		t.Errorf("unexpected guid %q", guid)
	}
	if action != `"http://tempuri.org/Restore"` {
		t.Errorf("unexpected SOAPAction %q", action)
	}
	for _, want := range []string{"<username>survey</username>", "<number>1</number>", "<bits>4</bits>", "<fileType>wapp</fileType>"} {
		if !strings.Contains(body, want) {
			t.Errorf("request body missing %s:\n%s", want, body)
		}
	}
}

func TestRequestRestore_Fail(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, soapResponse("Restore", "fail"))
	})

	if _, err := c.RequestRestore(context.Background()); !errors.Is(err, ErrRefused) {
		t.Errorf("expected ErrRefused, got %v", err)
	}
}

func TestQueryLocation(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		if strings.Contains(string(b), "<guid>ready-guid</guid>") {
			io.WriteString(w, soapResponse("Location", "done"))
			return
		}
		io.WriteString(w, soapResponse("Location", "processing"))
	})

	loc, err := c.QueryLocation(context.Background(), "ready-guid")
	if err != nil || loc != LocationDone {
		t.Errorf("expected done, got %q, %v", loc, err)
	}

	loc, err = c.QueryLocation(context.Background(), "other")
	if err != nil || loc != "processing" {
		t.Errorf("expected processing, got %q, %v", loc, err)
	}
}

func TestCall_Fault(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, soapFault)
	})

	_, err := c.QueryLocation(context.Background(), "g")
	if !errors.Is(err, ErrFault) {
		t.Fatalf("expected ErrFault, got %v", err)
	}
	if !strings.Contains(err.Error(), "archive offline") {
		t.Errorf("fault string missing from %v", err)
	}
}

func TestParseResult_Malformed(t *testing.T) {
	if _, err := parseResult([]byte("<html>nope</html>"), "RestoreResult"); !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("expected ErrMalformedResponse, got %v", err)
	}
}
