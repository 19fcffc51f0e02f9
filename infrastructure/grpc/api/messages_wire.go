package api

// Field numbers follow proto/chatrelay/v1/chatrelay.proto.

func (Empty) appendWire(*wireWriter) {}

func (*Empty) readField(wireField) error { return nil }

func (r RegisterRequest) appendWire(w *wireWriter) {
	w.str(1, r.Email)
	w.str(2, r.Secret)
	w.str(3, r.DisplayName)
}

func (r *RegisterRequest) readField(f wireField) error {
	switch f.num {
	case 1:
		r.Email = f.str()
	case 2:
		r.Secret = f.str()
	case 3:
		r.DisplayName = f.str()
	}
	return nil
}

func (r AuthenticateRequest) appendWire(w *wireWriter) {
	w.str(1, r.Email)
	w.str(2, r.Secret)
}

func (r *AuthenticateRequest) readField(f wireField) error {
	switch f.num {
	case 1:
		r.Email = f.str()
	case 2:
		r.Secret = f.str()
	}
	return nil
}

func (s Session) appendWire(w *wireWriter) {
	w.str(1, s.Token)
	w.str(2, s.AccountID)
	w.str(3, s.SessionID)
	w.time(4, s.ExpiresAt)
}

func (s *Session) readField(f wireField) (err error) {
	switch f.num {
	case 1:
		s.Token = f.str()
	case 2:
		s.AccountID = f.str()
	case 3:
		s.SessionID = f.str()
	case 4:
		s.ExpiresAt, err = f.time()
	}
	return err
}

func (r RegisterResponse) appendWire(w *wireWriter) {
	w.msg(1, r.Account)
	w.msg(2, r.Session)
}

func (r *RegisterResponse) readField(f wireField) error {
	switch f.num {
	case 1:
		return f.msg(&r.Account)
	case 2:
		return f.msg(&r.Session)
	}
	return nil
}

func (a Account) appendWire(w *wireWriter) {
	w.str(1, a.ID)
	w.str(2, a.DisplayName)
	w.str(3, a.Initials)
	w.str(4, a.ColorTag)
	w.str(5, a.Email)
	w.time(6, a.CreatedAt)
}

func (a *Account) readField(f wireField) (err error) {
	switch f.num {
	case 1:
		a.ID = f.str()
	case 2:
		a.DisplayName = f.str()
	case 3:
		a.Initials = f.str()
	case 4:
		a.ColorTag = f.str()
	case 5:
		a.Email = f.str()
	case 6:
		a.CreatedAt, err = f.time()
	}
	return err
}

func (r ListAccountsResponse) appendWire(w *wireWriter) {
	for _, a := range r.Accounts {
		w.msg(1, a)
	}
}

func (r *ListAccountsResponse) readField(f wireField) error {
	if f.num != 1 {
		return nil
	}
	var a Account
	if err := f.msg(&a); err != nil {
		return err
	}
	r.Accounts = append(r.Accounts, a)
	return nil
}

func (r UpdateProfileRequest) appendWire(w *wireWriter) {
	w.str(1, r.DisplayName)
	w.str(2, r.Email)
}

func (r *UpdateProfileRequest) readField(f wireField) error {
	switch f.num {
	case 1:
		r.DisplayName = f.str()
	case 2:
		r.Email = f.str()
	}
	return nil
}

func (r SendMessageRequest) appendWire(w *wireWriter) {
	w.str(1, r.CounterpartID)
	w.str(2, r.Text)
}

func (r *SendMessageRequest) readField(f wireField) error {
	switch f.num {
	case 1:
		r.CounterpartID = f.str()
	case 2:
		r.Text = f.str()
	}
	return nil
}

func (m Message) appendWire(w *wireWriter) {
	w.str(1, m.ID)
	w.str(2, m.Conversation)
	w.varint(3, m.Seq)
	w.str(4, m.Cursor)
	w.str(5, m.SenderID)
	w.str(6, m.Text)
	w.time(7, m.CreatedAt)
}

func (m *Message) readField(f wireField) (err error) {
	switch f.num {
	case 1:
		m.ID = f.str()
	case 2:
		m.Conversation = f.str()
	case 3:
		m.Seq = f.varint
	case 4:
		m.Cursor = f.str()
	case 5:
		m.SenderID = f.str()
	case 6:
		m.Text = f.str()
	case 7:
		m.CreatedAt, err = f.time()
	}
	return err
}

// conversation request fields: 1 conversation_key, 2 counterpart_id, 3 since.

func appendConversationRequest(w *wireWriter, ref ConversationRef, since string) {
	w.str(1, ref.ConversationKey)
	w.str(2, ref.CounterpartID)
	w.str(3, since)
}

func readConversationRequest(f wireField, ref *ConversationRef, since *string) {
	switch f.num {
	case 1:
		ref.ConversationKey = f.str()
	case 2:
		ref.CounterpartID = f.str()
	case 3:
		*since = f.str()
	}
}

func (r ListMessagesRequest) appendWire(w *wireWriter) {
	appendConversationRequest(w, r.ConversationRef, r.Since)
}

func (r *ListMessagesRequest) readField(f wireField) error {
	readConversationRequest(f, &r.ConversationRef, &r.Since)
	return nil
}

func (r SubscribeMessagesRequest) appendWire(w *wireWriter) {
	appendConversationRequest(w, r.ConversationRef, r.Since)
}

func (r *SubscribeMessagesRequest) readField(f wireField) error {
	readConversationRequest(f, &r.ConversationRef, &r.Since)
	return nil
}

func (r ListMessagesResponse) appendWire(w *wireWriter) {
	for _, m := range r.Messages {
		w.msg(1, m)
	}
}

func (r *ListMessagesResponse) readField(f wireField) error {
	if f.num != 1 {
		return nil
	}
	var m Message
	if err := f.msg(&m); err != nil {
		return err
	}
	r.Messages = append(r.Messages, m)
	return nil
}

func (s Summary) appendWire(w *wireWriter) {
	w.str(1, s.Conversation)
	w.str(2, s.Counterpart)
	w.str(3, s.LastMessageID)
	w.str(4, s.LastMessageText)
	w.str(5, s.LastSenderID)
	w.time(6, s.LastMessageAt)
	w.varint(7, s.LastSeq)
}

func (s *Summary) readField(f wireField) (err error) {
	switch f.num {
	case 1:
		s.Conversation = f.str()
	case 2:
		s.Counterpart = f.str()
	case 3:
		s.LastMessageID = f.str()
	case 4:
		s.LastMessageText = f.str()
	case 5:
		s.LastSenderID = f.str()
	case 6:
		s.LastMessageAt, err = f.time()
	case 7:
		s.LastSeq = f.varint
	}
	return err
}

func (r ListConversationsResponse) appendWire(w *wireWriter) {
	for _, s := range r.Summaries {
		w.msg(1, s)
	}
}

func (r *ListConversationsResponse) readField(f wireField) error {
	if f.num != 1 {
		return nil
	}
	var s Summary
	if err := f.msg(&s); err != nil {
		return err
	}
	r.Summaries = append(r.Summaries, s)
	return nil
}

func (r SearchRequest) appendWire(w *wireWriter) {
	w.str(1, r.Query)
	w.signed(2, r.Limit)
}

func (r *SearchRequest) readField(f wireField) error {
	switch f.num {
	case 1:
		r.Query = f.str()
	case 2:
		r.Limit = f.signed()
	}
	return nil
}

func (e MessageEvent) appendWire(w *wireWriter) {
	w.msg(1, e.Message)
}

func (e *MessageEvent) readField(f wireField) error {
	if f.num != 1 {
		return nil
	}
	return f.msg(&e.Message)
}

func (e SummaryEvent) appendWire(w *wireWriter) {
	w.msg(1, e.Summary)
}

func (e *SummaryEvent) readField(f wireField) error {
	if f.num != 1 {
		return nil
	}
	return f.msg(&e.Summary)
}
