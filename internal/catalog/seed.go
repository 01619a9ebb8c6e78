package catalog

// builtinSeed covers the built-in node types the pattern library references.
// Deployments with a richer platform install extend this via Config.Path.
var builtinSeed = []Metadata{
	{
		Type:        "n8n-nodes-base.webhook",
		DisplayName: "Webhook",
		IsTrigger:   true,
		RequiredParameters: []string{
			"path",
		},
	},
	{
		Type:        "n8n-nodes-base.scheduleTrigger",
		DisplayName: "Schedule Trigger",
		IsTrigger:   true,
	},
	{
		Type:        "n8n-nodes-base.manualTrigger",
		DisplayName: "Manual Trigger",
		IsTrigger:   true,
	},
	{
		Type:        "n8n-nodes-base.slack",
		DisplayName: "Slack",
		RequiredParameters: []string{
			"channel",
			"text",
		},
		CredentialTypes: []string{"slackApi"},
	},
	{
		Type:        "n8n-nodes-base.emailSend",
		DisplayName: "Send Email",
		RequiredParameters: []string{
			"toEmail",
			"subject",
		},
		CredentialTypes: []string{"smtp"},
	},
	{
		Type:        "n8n-nodes-base.httpRequest",
		DisplayName: "HTTP Request",
		RequiredParameters: []string{
			"url",
		},
	},
	{
		Type:        "n8n-nodes-base.postgres",
		DisplayName: "Postgres",
		RequiredParameters: []string{
			"operation",
		},
		CredentialTypes: []string{"postgres"},
	},
	{
		Type:        "n8n-nodes-base.googleSheets",
		DisplayName: "Google Sheets",
		RequiredParameters: []string{
			"operation",
		},
		CredentialTypes: []string{"googleSheetsOAuth2Api"},
	},
	{
		Type:        "n8n-nodes-base.telegram",
		DisplayName: "Telegram",
		RequiredParameters: []string{
			"chatId",
			"text",
		},
		CredentialTypes: []string{"telegramApi"},
	},
	{
		Type:        "n8n-nodes-base.discord",
		DisplayName: "Discord",
		RequiredParameters: []string{
			"text",
		},
		CredentialTypes: []string{"discordApi"},
	},
	{
		Type:        "n8n-nodes-base.set",
		DisplayName: "Set",
	},
	{
		Type:        "n8n-nodes-base.if",
		DisplayName: "If",
	},
	{
		Type:        "n8n-nodes-base.code",
		DisplayName: "Code",
	},
	{
		Type:        "n8n-nodes-base.html",
		DisplayName: "HTML Extract",
	},
	{
		Type:        "n8n-nodes-base.noOp",
		DisplayName: "No Operation",
	},
}
