package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iotdataplane"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"permit-enforcement/internal/domain/permit"
)

func sampleAlert() Alert {
	return Alert{
		Plate:          "AB12 CDE",
		Classification: permit.ClassificationUnpermitted,
		DetectedAt:     time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC),
		ImageID:        uuid.MustParse("7a1c4c44-7e43-4c39-9d59-0f4f1c2c0d11"),
		ImageName:      "frame-001.jpg",
	}
}

type recordingDispatcher struct {
	sent []Alert
	err  error
}

func (r *recordingDispatcher) Send(_ context.Context, a Alert) error {
	r.sent = append(r.sent, a)
	return r.err
}

func TestMultiSendsToAll(t *testing.T) {
	first := &recordingDispatcher{err: errors.New("ses down")}
	second := &recordingDispatcher{}

	err := Multi{first, second}.Send(context.Background(), sampleAlert())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDispatch)
	assert.Contains(t, err.Error(), "ses down")
	assert.Len(t, first.sent, 1)
	assert.Len(t, second.sent, 1)

	assert.NoError(t, Multi{second}.Send(context.Background(), sampleAlert()))
	assert.NoError(t, Multi{}.Send(context.Background(), sampleAlert()))
}

func TestLogDispatcher(t *testing.T) {
	var buf bytes.Buffer
	d := NewLogDispatcher(zerolog.New(&buf))
	require.NoError(t, d.Send(context.Background(), sampleAlert()))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "AB12 CDE", entry["plate"])
	assert.Equal(t, "UNPERMITTED", entry["classification"])
}

type fakeSES struct {
	input *sesv2.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func TestEmailDispatcher(t *testing.T) {
	ses := &fakeSES{}
	d := NewEmailDispatcher(ses, "noreply@example.com", []string{"ops@example.com"}, zerolog.Nop())

	require.NoError(t, d.Send(context.Background(), sampleAlert()))
	assert.Equal(t, "noreply@example.com", aws.ToString(ses.input.FromEmailAddress))
	assert.Equal(t, []string{"ops@example.com"}, ses.input.Destination.ToAddresses)

	msg := ses.input.Content.Simple
	assert.Equal(t, "Parking Violation Detected for License Plate: AB12 CDE", aws.ToString(msg.Subject.Data))
	assert.Contains(t, aws.ToString(msg.Body.Text.Data), "license plate: AB12 CDE")
	assert.Contains(t, aws.ToString(msg.Body.Text.Data), "No permit is on record")
	assert.Contains(t, aws.ToString(msg.Body.Html.Data), "<strong>AB12 CDE</strong>")
}

func TestEmailDispatcherError(t *testing.T) {
	d := NewEmailDispatcher(&fakeSES{err: errors.New("throttled")}, "a@b", []string{"c@d"}, zerolog.Nop())
	err := d.Send(context.Background(), sampleAlert())
	assert.ErrorIs(t, err, ErrDispatch)
}

func TestHTMLBodyEscapesPlate(t *testing.T) {
	a := sampleAlert()
	a.Plate = "<b>X</b>"
	a.Classification = permit.ClassificationViolating
	body := htmlBody(a)
	assert.Contains(t, body, "&lt;b&gt;X&lt;/b&gt;")
	assert.Contains(t, body, "inactive or expired")
}

type fakeIoT struct {
	input *iotdataplane.PublishInput
	err   error
}

func (f *fakeIoT) Publish(_ context.Context, in *iotdataplane.PublishInput, _ ...func(*iotdataplane.Options)) (*iotdataplane.PublishOutput, error) {
	f.input = in
	return &iotdataplane.PublishOutput{}, f.err
}

func TestIoTDispatcher(t *testing.T) {
	iot := &fakeIoT{}
	require.NoError(t, NewIoTDispatcher(iot, "parking/violations").Send(context.Background(), sampleAlert()))
	assert.Equal(t, "parking/violations", aws.ToString(iot.input.Topic))

	var decoded Alert
	require.NoError(t, json.Unmarshal(iot.input.Payload, &decoded))
	assert.Equal(t, sampleAlert(), decoded)

	iot.err = errors.New("no route")
	assert.ErrorIs(t, NewIoTDispatcher(iot, "t").Send(context.Background(), sampleAlert()), ErrDispatch)
}

func TestHubBroadcast(t *testing.T) {
	hub := NewHub([]string{"*"}, zerolog.Nop())
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, hub.Send(context.Background(), sampleAlert()))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var got Alert
	require.NoError(t, json.Unmarshal(payload, &got))
	assert.Equal(t, "AB12 CDE", got.Plate)
	assert.Equal(t, permit.ClassificationUnpermitted, got.Classification)
}

func TestHubWithoutClients(t *testing.T) {
	hub := NewHub(nil, zerolog.Nop())
	assert.NoError(t, hub.Send(context.Background(), sampleAlert()))
	assert.Zero(t, hub.Clients())
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://ops.example.com"})

	req := httptest.NewRequest("GET", "/", nil)
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://ops.example.com")
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, check(req))
}
