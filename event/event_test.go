package event

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aayush-engineer/chatflux/errors"
)

func TestNormalize_Defaults(t *testing.T) {
	ev := Event{OriginID: "conn-1", Body: "hello"}
	ev.Normalize()

	assert.Equal(t, KindUser, ev.Kind)
	assert.Equal(t, DefaultStreamID, ev.StreamID)
	assert.Zero(t, ev.CreatedAt, "Normalize must not assign CreatedAt")
}

func TestNormalize_PreservesExplicitValues(t *testing.T) {
	ev := Event{OriginID: "conn-1", Body: "bye", Kind: KindLeave, StreamID: "lobby"}
	ev.Normalize()

	assert.Equal(t, KindLeave, ev.Kind)
	assert.Equal(t, "lobby", ev.StreamID)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		event   Event
		wantErr error
	}{
		{
			name:  "valid user event",
			event: Event{OriginID: "conn-1", Body: "hello", Kind: KindUser, StreamID: "global"},
		},
		{
			name:    "empty body rejected",
			event:   Event{OriginID: "conn-1", Body: "", Kind: KindUser},
			wantErr: errors.ErrBodyRequired,
		},
		{
			name:    "body over limit rejected",
			event:   Event{OriginID: "conn-1", Body: strings.Repeat("a", MaxBodyLength+1), Kind: KindUser},
			wantErr: errors.ErrBodyTooLong,
		},
		{
			name:  "body at limit accepted",
			event: Event{OriginID: "conn-1", Body: strings.Repeat("a", MaxBodyLength), Kind: KindUser},
		},
		{
			name: "multibyte body counted in code points",
			// 5000 code points, far more than 5000 bytes
			event: Event{OriginID: "conn-1", Body: strings.Repeat("é", MaxBodyLength), Kind: KindUser},
		},
		{
			name:    "unknown kind rejected",
			event:   Event{OriginID: "conn-1", Body: "hello", Kind: Kind("admin")},
			wantErr: errors.ErrInvalidKind,
		},
		{
			name:  "join kind accepted",
			event: Event{OriginID: "conn-1", Body: "conn-1 joined the chat!", Kind: KindJoin},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := test.event.Validate()
			if test.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err), "validation errors must classify as invalid")
			assert.ErrorIs(t, err, test.wantErr)
		})
	}
}

func TestKind_Valid(t *testing.T) {
	assert.True(t, KindUser.Valid())
	assert.True(t, KindSystem.Valid())
	assert.True(t, KindJoin.Valid())
	assert.True(t, KindLeave.Valid())
	assert.False(t, Kind("").Valid())
	assert.False(t, Kind("broadcast").Valid())
}

func TestPartitionKey(t *testing.T) {
	ev := Event{OriginID: "conn-9"}
	assert.Equal(t, "conn-9", ev.PartitionKey())

	system := Event{}
	assert.Equal(t, SystemOriginKey, system.PartitionKey())
}

func TestMarshalUnmarshal_Roundtrip(t *testing.T) {
	ev := Event{
		OriginID:   "conn-1",
		Body:       "hello world",
		Kind:       KindUser,
		StreamID:   "global",
		Attributes: map[string]any{"client": "web"},
		CreatedAt:  time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC).UnixMilli(),
	}

	data, err := ev.Marshal()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"originId":"conn-1"`)
	assert.Contains(t, string(data), `"createdAt":`)

	decoded, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, ev.OriginID, decoded.OriginID)
	assert.Equal(t, ev.Body, decoded.Body)
	assert.Equal(t, ev.Kind, decoded.Kind)
	assert.Equal(t, ev.CreatedAt, decoded.CreatedAt)
	assert.Equal(t, ev.Time(), decoded.Time())
}

func TestUnmarshal_Malformed(t *testing.T) {
	_, err := Unmarshal([]byte("{not json"))
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}
