package transport

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gosnmp/gosnmp"
	"github.com/nmslite/snmppoller/internal/request"
	"github.com/nmslite/snmppoller/internal/requester"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	mu      sync.Mutex
	calls   []string
	packet  *gosnmp.SnmpPacket
	err     error
	release chan struct{}
}

func (f *fakeClient) record(call string) (*gosnmp.SnmpPacket, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
	if f.release != nil {
		<-f.release
	}
	return f.packet, f.err
}

func (f *fakeClient) Get([]string) (*gosnmp.SnmpPacket, error)     { return f.record("get") }
func (f *fakeClient) GetNext([]string) (*gosnmp.SnmpPacket, error) { return f.record("getnext") }
func (f *fakeClient) GetBulk([]string, uint8, uint32) (*gosnmp.SnmpPacket, error) {
	return f.record("getbulk")
}

type outcome struct {
	resp    *requester.Response
	code    int
	err     error
	timeout bool
}

type recordingHandler struct {
	ch chan outcome
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{ch: make(chan outcome, 4)}
}

func (h *recordingHandler) OnData(resp requester.Response) { h.ch <- outcome{resp: &resp} }
func (h *recordingHandler) OnError(code int, err error)    { h.ch <- outcome{code: code, err: err} }
func (h *recordingHandler) OnTimeout()                     { h.ch <- outcome{timeout: true} }

func (h *recordingHandler) next(t *testing.T) outcome {
	t.Helper()
	select {
	case o := <-h.ch:
		return o
	case <-time.After(2 * time.Second):
		t.Fatal("no callback delivered")
		return outcome{}
	}
}

func TestSession_Delivery(t *testing.T) {
	tests := []struct {
		name   string
		client *fakeClient
		check  func(t *testing.T, o outcome)
	}{
		{
			name: "data",
			client: &fakeClient{packet: &gosnmp.SnmpPacket{Variables: []gosnmp.SnmpPDU{
				{Name: "." + request.SysName, Type: gosnmp.OctetString, Value: []byte("edge-01")},
			}}},
			check: func(t *testing.T, o outcome) {
				require.NotNil(t, o.resp)
				assert.Equal(t, 4, o.resp.RequestID)
				assert.Len(t, o.resp.Variables, 1)
			},
		},
		{
			name:   "agent error status",
			client: &fakeClient{packet: &gosnmp.SnmpPacket{Error: gosnmp.NoSuchName, ErrorIndex: 1}},
			check: func(t *testing.T, o outcome) {
				assert.Equal(t, int(gosnmp.NoSuchName), o.code)
				assert.Error(t, o.err)
			},
		},
		{
			name:   "transport error",
			client: &fakeClient{err: errors.New("connection refused")},
			check: func(t *testing.T, o outcome) {
				assert.Equal(t, requester.ErrCodeTransport, o.code)
			},
		},
		{
			name:   "retries exhausted",
			client: &fakeClient{err: errors.New("request timeout (after 2 retries)")},
			check: func(t *testing.T, o outcome) {
				assert.True(t, o.timeout)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSession(tt.client, gosnmp.Version2c, nil, nil)
			h := newRecordingHandler()
			s.SetDefaultHandler(h)

			require.NoError(t, s.Send(requester.Message{Type: gosnmp.GetRequest, RequestID: 4, OIDs: []string{request.SysName}}))
			tt.check(t, h.next(t))
			require.NoError(t, s.Close())
		})
	}
}

func TestSession_DispatchesByType(t *testing.T) {
	c := &fakeClient{packet: &gosnmp.SnmpPacket{}}
	s := newSession(c, gosnmp.Version2c, nil, nil)
	h := newRecordingHandler()

	for _, typ := range []gosnmp.PDUType{gosnmp.GetRequest, gosnmp.GetNextRequest, gosnmp.GetBulkRequest} {
		require.NoError(t, s.SendWith(requester.Message{Type: typ, OIDs: []string{request.SysDescr}}, h))
		h.next(t)
	}
	assert.Equal(t, []string{"get", "getnext", "getbulk"}, c.calls)
}

func TestSession_SingleOutstandingExchange(t *testing.T) {
	c := &fakeClient{packet: &gosnmp.SnmpPacket{}, release: make(chan struct{})}
	s := newSession(c, gosnmp.Version2c, nil, nil)
	h := newRecordingHandler()
	s.SetDefaultHandler(h)

	msg := requester.Message{Type: gosnmp.GetRequest, OIDs: []string{request.SysDescr}}
	require.NoError(t, s.Send(msg))
	assert.ErrorIs(t, s.Send(msg), requester.ErrSessionBusy)

	close(c.release)
	h.next(t)
	require.NoError(t, s.Send(msg))
	h.next(t)
}

func TestSession_Rejects(t *testing.T) {
	closed := false
	s := newSession(&fakeClient{packet: &gosnmp.SnmpPacket{}}, gosnmp.Version1, func() error {
		closed = true
		return nil
	}, nil)

	assert.Error(t, s.Send(requester.Message{Type: gosnmp.GetRequest}), "no handler registered")

	h := newRecordingHandler()
	assert.Error(t, s.SendWith(requester.Message{Type: gosnmp.GetBulkRequest}, h))
	assert.Error(t, s.SendWith(requester.Message{Type: gosnmp.SetRequest}, h))

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.True(t, closed)
	assert.True(t, s.IsClosed())
	assert.ErrorIs(t, s.SendWith(requester.Message{Type: gosnmp.GetRequest}, h), requester.ErrSessionClosed)
}

func TestSession_DrivesRequester(t *testing.T) {
	c := &fakeClient{packet: &gosnmp.SnmpPacket{Variables: []gosnmp.SnmpPDU{
		{Name: "." + request.SysDescr, Type: gosnmp.OctetString, Value: []byte("Linux")},
	}}}
	s := newSession(c, gosnmp.Version2c, nil, nil)

	r := requester.NewSequential([]*request.ValueRequest{request.New(request.SysDescr, nil)}, nil)
	results, err := r.Execute(s)
	require.NoError(t, err)
	assert.Equal(t, "Linux", results[0].ResultValue())

	c.err = errors.New("i/o timeout")
	_, err = r.Execute(s)
	assert.ErrorIs(t, err, requester.ErrTimeout)
}

func TestParseVersion(t *testing.T) {
	for in, want := range map[string]gosnmp.SnmpVersion{
		"1": gosnmp.Version1, "2c": gosnmp.Version2c, "v2c": gosnmp.Version2c, "3": gosnmp.Version3,
	} {
		got, err := ParseVersion(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseVersion("4")
	assert.Error(t, err)
}

func TestUSM(t *testing.T) {
	tests := []struct {
		name      string
		creds     Credentials
		wantFlags gosnmp.SnmpV3MsgFlags
		wantErr   bool
	}{
		{"noAuthNoPriv", Credentials{SecurityName: "ro", SecurityLevel: "noAuthNoPriv"}, gosnmp.NoAuthNoPriv, false},
		{"authNoPriv", Credentials{SecurityName: "ro", SecurityLevel: "authNoPriv", AuthProtocol: "SHA256", AuthPassword: "secret123"}, gosnmp.AuthNoPriv, false},
		{"authPriv", Credentials{SecurityName: "ro", SecurityLevel: "authPriv", AuthProtocol: "SHA", AuthPassword: "a", PrivProtocol: "AES", PrivPassword: "p"}, gosnmp.AuthPriv, false},
		{"authPriv without privacy", Credentials{SecurityLevel: "authPriv", AuthProtocol: "SHA"}, 0, true},
		{"bad level", Credentials{SecurityLevel: "maximum"}, 0, true},
		{"bad auth", Credentials{SecurityLevel: "authNoPriv", AuthProtocol: "CRC"}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params, flags, err := usm(tt.creds)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantFlags, flags)
			assert.Equal(t, tt.creds.SecurityName, params.UserName)
		})
	}
}

func TestNewGoSNMP(t *testing.T) {
	g, err := newGoSNMP(Config{Host: "10.0.0.1", Version: gosnmp.Version2c, Timeout: time.Second, Credentials: Credentials{Community: "public"}})
	require.NoError(t, err)
	assert.Equal(t, uint16(161), g.Port)
	assert.Equal(t, "public", g.Community)

	g, err = newGoSNMP(Config{Host: "10.0.0.1", Port: 1161, Version: gosnmp.Version3, Credentials: Credentials{SecurityName: "u", SecurityLevel: "noAuthNoPriv"}})
	require.NoError(t, err)
	assert.Equal(t, gosnmp.UserSecurityModel, g.SecurityModel)
	assert.Equal(t, uint16(1161), g.Port)
}
