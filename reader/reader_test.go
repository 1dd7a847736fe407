package reader

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMKSolutionsReadTags(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/mkStaffStationAPI/getItems", r.URL.Path)
		io.WriteString(w, `<items>
			<item><barcode>3100001</barcode><is_secure>TRUE</is_secure></item>
			<item><barcode> 3100002 </barcode><is_secure>false</is_secure></item>
		</items>`)
	}))
	defer srv.Close()

	m := NewMKSolutions(srv.URL+"/mkStaffStationAPI/", time.Second, time.Second)
	snap, err := m.ReadTags(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Tag{{"3100001", true}, {"3100002", false}}, snap.Items)

	alive, err := m.Probe(context.Background())
	require.NoError(t, err)
	assert.True(t, alive)
}

func TestMKSolutionsEmptyPad(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<items></items>`)
	}))
	defer srv.Close()

	snap, err := NewMKSolutions(srv.URL, time.Second, time.Second).ReadTags(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, snap.Items)
	assert.Empty(t, snap.Items)
}

func TestMKSolutionsUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	m := NewMKSolutions(srv.URL, time.Second, time.Second)
	_, err := m.ReadTags(context.Background())
	assert.ErrorIs(t, err, ErrUnreachable)

	alive, err := m.Probe(context.Background())
	assert.Error(t, err)
	assert.False(t, alive)
}

func TestMKSolutionsSetSecurity(t *testing.T) {
	var gotBody, gotType, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody, gotType, gotMethod = string(b), r.Header.Get("Content-Type"), r.Method
		assert.Equal(t, "/setSecurity", r.URL.Path)
	}))
	defer srv.Close()

	err := NewMKSolutions(srv.URL, time.Second, time.Second).SetSecurity(context.Background(), "3100001", true)
	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "text/xml", gotType)
	assert.Equal(t, "<rfid><barcode>3100001</barcode><is_secure>true</is_secure></rfid>", gotBody)
}

func newTestCircIt(url string) *CircIt {
	c := NewCircIt(CircItConfig{}, time.Second, time.Second)
	c.once.Do(func() { c.base = url })
	return c
}

func TestCircItBaseURL(t *testing.T) {
	tests := []struct {
		cfg  CircItConfig
		want string
	}{
		{CircItConfig{}, "http://localhost:9201"},
		{CircItConfig{Port: "9300"}, "http://localhost:9300"},
		{CircItConfig{Port: "9300", NonAdministrative: true}, "http://localhost:80/Temporary_Listen_Addresses"},
	}
	for _, tt := range tests {
		c := NewCircIt(tt.cfg, time.Second, time.Second)
		require.NoError(t, c.Init())
		require.NoError(t, c.Init())
		assert.Equal(t, tt.want, c.BaseURL())
	}
}

func TestCircItProbe(t *testing.T) {
	tests := []struct {
		body string
		want bool
	}{
		{`{"status":true,"statuscode":0}`, true},
		{`{"status":true,"statuscode":3}`, false},
		{`{"status":false,"statuscode":0}`, false},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/alive", r.URL.Path)
			io.WriteString(w, tt.body)
		}))
		alive, err := newTestCircIt(srv.URL).Probe(context.Background())
		srv.Close()
		require.NoError(t, err)
		assert.Equal(t, tt.want, alive, tt.body)
	}
}

func TestCircItReadTags(t *testing.T) {
	body := `{"status":true,"items":[{"barcode":"A","security":true},{"barcode":"B","security":false}]}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/getitems" {
			io.WriteString(w, body)
		}
	}))
	defer srv.Close()
	c := newTestCircIt(srv.URL)

	snap, err := c.ReadTags(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, snap.Barcodes())
	assert.True(t, snap.Items[0].Security)

	body = `{"status":false,"items":[]}`
	_, err = c.ReadTags(context.Background())
	assert.ErrorIs(t, err, ErrUnreachable)

	body = `not json`
	_, err = c.ReadTags(context.Background())
	assert.ErrorIs(t, err, ErrUnreachable)
}

func TestCircItSetSecurity(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		io.WriteString(w, `{"status":true}`)
	}))
	defer srv.Close()

	require.NoError(t, newTestCircIt(srv.URL).SetSecurity(context.Background(), "A1", false))
	assert.Equal(t, "/setsecurity/A1/false", path)

	srv.Close()
	err := newTestCircIt(srv.URL).SetSecurity(context.Background(), "A1", true)
	assert.ErrorIs(t, err, ErrSecurityToggle)
}

type fakeVendor struct {
	name     string
	initErr  error
	alive    bool
	probeErr error
	closed   bool
}

func (f *fakeVendor) Name() string                              { return f.name }
func (f *fakeVendor) Init() error                               { return f.initErr }
func (f *fakeVendor) Probe(context.Context) (bool, error)        { return f.alive, f.probeErr }
func (f *fakeVendor) ReadTags(context.Context) (Snapshot, error) { return Snapshot{}, nil }
func (f *fakeVendor) SetSecurity(context.Context, string, bool) error {
	return nil
}
func (f *fakeVendor) PollInterval() time.Duration { return time.Millisecond }
func (f *fakeVendor) Close() error                { f.closed = true; return nil }

func TestSelectFirstAlive(t *testing.T) {
	broken := &fakeVendor{name: "broken", probeErr: errors.New("refused")}
	dead := &fakeVendor{name: "dead"}
	noDevice := &fakeVendor{name: "nodevice", initErr: errors.New("no device")}
	good := &fakeVendor{name: "good", alive: true}
	later := &fakeVendor{name: "later", alive: true}

	v, err := Select(context.Background(), []Vendor{broken, dead, noDevice, good, later}, time.Second, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "good", v.Name())
	assert.True(t, broken.closed)
	assert.True(t, dead.closed)
	assert.False(t, good.closed)
}

func TestSelectNoneAlive(t *testing.T) {
	_, err := Select(context.Background(), []Vendor{&fakeVendor{name: "dead"}}, time.Second, zap.NewNop())
	assert.ErrorIs(t, err, ErrNoReaderFound)

	_, err = Select(context.Background(), nil, time.Second, zap.NewNop())
	assert.ErrorIs(t, err, ErrNoReaderFound)
}

func TestSelectAgainstHTTPVendors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"status":true,"statuscode":0}`)
	}))
	defer srv.Close()

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer down.Close()

	mk := NewMKSolutions(down.URL, time.Second, time.Second)
	ci := newTestCircIt(srv.URL)

	v, err := Select(context.Background(), []Vendor{mk, ci}, time.Second, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "circit", v.Name())
}

func TestCandidates(t *testing.T) {
	vs, err := Candidates(Config{}, zap.NewNop())
	require.NoError(t, err)
	require.Len(t, vs, 2)
	assert.Equal(t, "mksolutions", vs[0].Name())
	assert.Equal(t, "circit", vs[1].Name())
	assert.Equal(t, DefaultPollInterval, vs[0].PollInterval())

	vs, err = Candidates(Config{Serial: SerialConfig{Device: "/dev/ttyUSB0"}}, zap.NewNop())
	require.NoError(t, err)
	require.Len(t, vs, 3)
	assert.Equal(t, "serial", vs[2].Name())

	vs, err = Candidates(Config{Vendors: []string{"circit"}, PollInterval: time.Second}, zap.NewNop())
	require.NoError(t, err)
	require.Len(t, vs, 1)
	assert.Equal(t, time.Second, vs[0].PollInterval())

	_, err = Candidates(Config{Vendors: []string{"nope"}}, zap.NewNop())
	assert.Error(t, err)
}

func TestDeviceVendorsWithoutDevice(t *testing.T) {
	for _, v := range []Vendor{
		NewSerial(SerialConfig{}, time.Second, zap.NewNop()),
		NewKeyboard(KeyboardConfig{}, time.Second, zap.NewNop()),
	} {
		alive, err := v.Probe(context.Background())
		assert.Error(t, err)
		assert.False(t, alive)

		_, err = v.ReadTags(context.Background())
		assert.ErrorIs(t, err, ErrUnreachable)

		err = v.SetSecurity(context.Background(), "A", true)
		assert.ErrorIs(t, err, ErrUnsupported)
		assert.NoError(t, v.Close())
	}
}
