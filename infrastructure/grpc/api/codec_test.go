package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// fieldsOf splits a wire message into its length-delimited fields.
func fieldsOf(t *testing.T, b []byte) map[protowire.Number][]byte {
	t.Helper()
	fields := make(map[protowire.Number][]byte)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		require.GreaterOrEqual(t, n, 0)
		b = b[n:]
		if typ != protowire.BytesType {
			n = protowire.ConsumeFieldValue(num, typ, b)
			require.GreaterOrEqual(t, n, 0)
			b = b[n:]
			continue
		}
		v, n := protowire.ConsumeBytes(b)
		require.GreaterOrEqual(t, n, 0)
		fields[num] = v
		b = b[n:]
	}
	return fields
}

func Test_Codec_Writes_Well_Known_Timestamps(t *testing.T) {
	req := require.New(t)
	expiresAt := time.Date(2026, 3, 1, 12, 30, 0, 42, time.UTC)

	b, err := Codec{}.Marshal(&Session{Token: "tkn", AccountID: "alice", SessionID: "sid", ExpiresAt: expiresAt})
	req.NoError(err)

	fields := fieldsOf(t, b)
	req.Equal("tkn", string(fields[1]))
	var ts timestamppb.Timestamp
	req.NoError(proto.Unmarshal(fields[4], &ts))
	req.True(expiresAt.Equal(ts.AsTime()))
}

func Test_Codec_Nested_And_Repeated_Messages(t *testing.T) {
	req := require.New(t)
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	in := &ListMessagesResponse{Messages: []Message{
		{ID: "m1", Conversation: "alice:bob", Seq: 1, Cursor: "1", SenderID: "alice", Text: "hello", CreatedAt: at},
		{ID: "m2", Conversation: "alice:bob", Seq: 2, Cursor: "2", SenderID: "bob"},
	}}

	b, err := Codec{}.Marshal(in)
	req.NoError(err)
	var out ListMessagesResponse
	req.NoError(Codec{}.Unmarshal(b, &out))
	req.Equal(in.Messages, out.Messages)

	b, err = Codec{}.Marshal(&RegisterResponse{Account: Account{ID: "alice"}, Session: Session{Token: "tkn"}})
	req.NoError(err)
	var registered RegisterResponse
	req.NoError(Codec{}.Unmarshal(b, &registered))
	req.Equal("alice", registered.Account.ID)
	req.Equal("tkn", registered.Session.Token)
}

func Test_Codec_Empty_Message_Is_Zero_Bytes(t *testing.T) {
	req := require.New(t)
	b, err := Codec{}.Marshal(&Empty{})
	req.NoError(err)
	req.Empty(b)

	var out SubscribeMessagesRequest
	req.NoError(Codec{}.Unmarshal(nil, &out))
	req.Equal(SubscribeMessagesRequest{}, out)
}

func Test_Codec_Skips_Unknown_Fields(t *testing.T) {
	req := require.New(t)
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendString(b, "bob")
	b = protowire.AppendTag(b, 9, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, 7)
	b = protowire.AppendTag(b, 12, protowire.BytesType)
	b = protowire.AppendString(b, "from a newer client")
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendString(b, "hi")

	var out SendMessageRequest
	req.NoError(Codec{}.Unmarshal(b, &out))
	req.Equal(SendMessageRequest{CounterpartID: "bob", Text: "hi"}, out)
}

func Test_Codec_Search_Limit_Is_An_Int32(t *testing.T) {
	req := require.New(t)
	for _, limit := range []int{0, 25, -1} {
		b, err := Codec{}.Marshal(&SearchRequest{Query: "harbour", Limit: limit})
		req.NoError(err)
		var out SearchRequest
		req.NoError(Codec{}.Unmarshal(b, &out))
		req.Equal(limit, out.Limit)
	}
}

func Test_Codec_Rejects_Truncated_Input(t *testing.T) {
	b, err := Codec{}.Marshal(&SendMessageRequest{CounterpartID: "bob", Text: "hello"})
	require.NoError(t, err)
	var out SendMessageRequest
	require.Error(t, Codec{}.Unmarshal(b[:len(b)-2], &out))
}

func Test_Codec_Hands_Other_Messages_To_Protobuf(t *testing.T) {
	req := require.New(t)
	in := timestamppb.New(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	b, err := Codec{}.Marshal(in)
	req.NoError(err)
	var out timestamppb.Timestamp
	req.NoError(Codec{}.Unmarshal(b, &out))
	req.True(proto.Equal(in, &out))

	_, err = Codec{}.Marshal(struct{}{})
	req.Error(err)
	req.Equal("proto", Codec{}.Name())
}
