package log

// Shared structured-field names so log output stays greppable
// across packages.
const (
	FieldService = "service"

	FieldUserID   = "user_id"
	FieldConnID   = "conn_id"
	FieldChatID   = "chat_id"
	FieldMsgID    = "message_id"
	FieldEvent    = "event"
	FieldChannel  = "channel"
)
