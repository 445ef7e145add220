package netx

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/m-lab/go/testingx"
)

func TestSaveConn(t *testing.T) {
	ctx := context.Background()
	if LoadConn(ctx) != nil {
		t.Fatal("LoadConn() on empty context must return nil")
	}
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()
	if got := LoadConn(SaveConn(ctx, c1)); got != c1 {
		t.Errorf("LoadConn() = %v, want %v", got, c1)
	}
}

func TestCookie(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()
	if _, err := Cookie(c1); err != ErrNotTCP {
		t.Errorf("Cookie(pipe) error = %v, want %v", err, ErrNotTCP)
	}
	if _, err := Cookie(nil); err != ErrNotTCP {
		t.Errorf("Cookie(nil) error = %v, want %v", err, ErrNotTCP)
	}
}

func TestMeasurementID(t *testing.T) {
	// Without a connection a random ID is generated.
	a := MeasurementID(context.Background())
	b := MeasurementID(context.Background())
	if a == "" || a == b {
		t.Errorf("MeasurementID() = %q, %q; want distinct non-empty IDs", a, b)
	}

	ids := make(chan string, 1)
	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ids <- MeasurementID(r.Context())
	}))
	srv.Config.ConnContext = SaveConn
	srv.Start()
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	testingx.Must(t, err, "GET failed")
	resp.Body.Close()
	if id := <-ids; id == "" {
		t.Error("MeasurementID() returned an empty ID for a TCP connection")
	}
}

func TestMeasurementID_KeepsConnectionUsable(t *testing.T) {
	ids := make(chan string, 2)
	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ids <- MeasurementID(r.Context())
	}))
	srv.Config.ConnContext = SaveConn
	srv.Config.ReadTimeout = 500 * time.Millisecond
	srv.Start()

	// Two requests on the same keep-alive connection.
	client := srv.Client()
	for i := 0; i < 2; i++ {
		resp, err := client.Get(srv.URL)
		testingx.Must(t, err, "GET failed")
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
	first, second := <-ids, <-ids
	if cookiesSupported(t) && first != second {
		t.Errorf("same connection got IDs %q and %q", first, second)
	}

	// The idle connection must still honor deadlines and shutdown.
	start := time.Now()
	srv.Close()
	if d := time.Since(start); d > 3*time.Second {
		t.Errorf("Close() took %v with an idle keep-alive connection", d)
	}
}

func cookiesSupported(t *testing.T) bool {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	testingx.Must(t, err, "cannot listen")
	defer ln.Close()
	c, err := net.Dial("tcp", ln.Addr().String())
	testingx.Must(t, err, "cannot dial")
	defer c.Close()
	_, err = Cookie(c)
	return err == nil
}
