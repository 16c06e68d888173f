package emailsvc

import (
	"net/mail"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yarcoin/marketplace/core"
	logsvc "github.com/yarcoin/marketplace/services/logger"
)

func TestConsoleService_SendMessages(t *testing.T) {
	conf := &core.Config{AppName: "YARCoin", FrontendBaseURL: "http://front.test"}
	logger := logsvc.NewRollbarLogger(zap.NewNop(), conf)
	core.ParseEmailTemplates(logger, true)

	svc := NewConsoleServiceMock(logger, conf)
	svc.SendMessages(
		&core.EmailMessage{
			To:           []mail.Address{{Name: "Awe Some", Address: "awe@test.cd"}},
			Subject:      "Password Reset",
			TemplateName: "password_reset",
			TemplateData: map[string]string{"Name": "Awe Some", "Username": "awe", "UID": "uid", "Token": "tok-en"},
		},
		&core.EmailMessage{To: []mail.Address{{Address: "plain@test.cd"}}, Subject: "Hi", BodyStr: "hello"},
		&core.EmailMessage{Subject: "nobody", BodyStr: "lost"}, // no recipients
		&core.EmailMessage{To: []mail.Address{{Address: "x@test.cd"}}, Subject: "empty"},
	)

	sent := svc.SentMessages()
	require.Len(t, sent, 2)

	assert.Contains(t, sent[0].TextContent, "Hello Awe Some")
	assert.Contains(t, sent[0].TextContent, "http://front.test/password-reset/uid/tok-en")
	assert.Contains(t, sent[0].TextContent, "awe")
	assert.Contains(t, sent[0].HTMLContent, "http://front.test/password-reset/uid/tok-en")

	assert.Equal(t, "hello", sent[1].TextContent)
	assert.Empty(t, sent[1].HTMLContent)

	svc.ClearSentMessages()
	assert.Empty(t, svc.SentMessages())
}
