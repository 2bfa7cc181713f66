package webdriver

import (
	"strings"

	"github.com/browser-repro/regression-tests/sessiondef"

	"github.com/tidwall/gjson"
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

// Release channel names are resolved by client-side tooling, never by the driver itself.
var browserChannels = map[string]bool{"stable": true, "beta": true, "dev": true, "canary": true}

// NewSessionPayload builds the body of a new-session request. When the config explicitly
// turns w3c off, the capabilities are duplicated into the legacy desiredCapabilities field
// so that a driver that still speaks the old dialect can pick them up.
func NewSessionPayload(config sessiondef.SessionConfig) map[string]interface{} {
	chromeOptions := map[string]interface{}{}
	if args := config.Args(); len(args) > 0 {
		chromeOptions["args"] = args
	}
	if excluded := config.ExcludeSwitches(); len(excluded) > 0 {
		chromeOptions["excludeSwitches"] = excluded
	}
	if prefs := config.Prefs(); len(prefs) > 0 {
		chromeOptions["prefs"] = prefs
	}
	if binary := config.String(sessiondef.OptionBinary); binary != "" {
		chromeOptions["binary"] = binary
	}
	w3c, w3cDefined := config.Bool(sessiondef.OptionW3C)
	if w3cDefined {
		chromeOptions["w3c"] = w3c
	}

	capabilities := map[string]interface{}{
		sessiondef.CapabilityBrowserName:   "chrome",
		sessiondef.CapabilityChromeOptions: chromeOptions,
	}
	if version := config.String(sessiondef.OptionBrowserVersion); version != "" &&
		!browserChannels[strings.ToLower(version)] {
		capabilities[sessiondef.CapabilityBrowserVersion] = version
	}
	if logging := config.Object(sessiondef.OptionLoggingPrefs); len(logging) > 0 {
		capabilities[sessiondef.CapabilityLoggingPrefs] = logging
	}
	for name, value := range config.Object(sessiondef.OptionCapabilities) {
		capabilities[name] = value
	}

	payload := map[string]interface{}{
		"capabilities": map[string]interface{}{
			"alwaysMatch": capabilities,
		},
	}
	if w3cDefined && !w3c {
		payload["desiredCapabilities"] = capabilities
	}
	return payload
}

// parseNewSessionResponse extracts the session ID and the returned capabilities. W3C drivers
// answer {"value":{"sessionId":...,"capabilities":{...}}}; legacy drivers answer
// {"sessionId":...,"status":0,"value":{...capabilities...}}.
func parseNewSessionResponse(result gjson.Result) (id string, capabilities ldvalue.Value) {
	if sid := result.Get("value.sessionId"); sid.Exists() {
		return sid.String(), ldvalue.Parse([]byte(result.Get("value.capabilities").Raw))
	}
	if sid := result.Get("sessionId"); sid.Exists() {
		return sid.String(), ldvalue.Parse([]byte(result.Get("value").Raw))
	}
	return "", ldvalue.Null()
}
