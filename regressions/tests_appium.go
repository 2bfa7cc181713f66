package regressions

import (
	"fmt"
	"net/http"
	"time"

	"github.com/browser-repro/regression-tests/driver"
	"github.com/browser-repro/regression-tests/sessiondef"

	"github.com/stretchr/testify/require"
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

const (
	nativeAppContext       = "NATIVE_APP"
	androidKeycodeBack     = 4
	androidPageLoadTimeout = 60 * time.Second
	androidImplicitWait    = 30 * time.Second
	exampleURL             = "https://example.com"

	// Chrome closes the tab asynchronously after the back key and Appium has nothing to wait
	// on, so give it this long.
	backButtonSettleTime = 2 * time.Second
)

func androidSession(t *T) driver.Session {
	return t.NewSession(
		sessiondef.WithRemoteURL(t.env.AppiumURL),
		sessiondef.WithCapability("platformName", ldvalue.String("Android")),
		sessiondef.WithCapability("browserName", ldvalue.String("Chrome")),
		sessiondef.WithCapability("appium:deviceName", ldvalue.String("Android Emulator")),
		sessiondef.WithCapability("appium:automationName", ldvalue.String("UiAutomator2")),
		sessiondef.WithCapability("appium:noReset", ldvalue.Bool(true)),
		sessiondef.WithCapability("appium:uiautomator2ServerInstallTimeout", ldvalue.Int(60000)),
		sessiondef.WithPageLoadTimeout(int(androidPageLoadTimeout.Milliseconds())),
		sessiondef.WithOption(sessiondef.OptionImplicitWaitMS, ldvalue.Int(int(androidImplicitWait.Milliseconds()))),
	)
}

func DoAndroidTests(t *T) {
	t.RequireBackend(driver.BackendWebDriver)
	t.RequireCapability(CapabilityAppium)
	t.RequireCapability(CapabilityNetwork)

	t.Run("navigate to google.com", func(t *T) {
		session := androidSession(t)
		t.Navigate(session, googleURL)
		require.Equal(t, "Google", t.RequireTitle(session))
	})

	// Closing a tab with the native back button used to leave the driver unable to find
	// elements in tabs opened afterwards.
	t.Run("new tab after native back button closes a tab", func(t *T) {
		session := androidSession(t)
		commander := t.RequireCommander(session)

		t.Navigate(session, googleURL)
		openTab(t, session, commander)
		t.Navigate(session, exampleURL)

		setContext(t, commander, nativeAppContext)
		_, err := commander.Command(t.Ctx(), http.MethodPost, "/appium/device/press_keycode",
			map[string]interface{}{"keycode": androidKeycodeBack})
		require.NoError(t, err, "pressing the back key")
		time.Sleep(backButtonSettleTime)

		contexts, err := commander.Command(t.Ctx(), http.MethodGet, "/contexts", nil)
		require.NoError(t, err)
		t.Debug("contexts after back key: %s", contexts.JSONString())
		for i := 0; i < contexts.Count(); i++ {
			if name := contexts.GetByIndex(i).StringValue(); name != nativeAppContext {
				setContext(t, commander, name)
				break
			}
		}

		openTab(t, session, commander)
		t.Navigate(session, googleURL)
		t.RequireElement(session, driver.Name("q"))
	})
}

func openTab(t *T, session driver.Session, commander driver.Commander) {
	result, err := commander.Command(t.Ctx(), http.MethodPost, "/window/new", map[string]interface{}{"type": "tab"})
	require.NoError(t, err, "opening a new tab")
	handle := result.GetByKey("handle").StringValue()
	require.NotEmpty(t, handle, "new window response had no handle: %s", result.JSONString())
	require.NoError(t, session.SwitchToWindow(t.Ctx(), handle))
}

func setContext(t *T, commander driver.Commander, name string) {
	_, err := commander.Command(t.Ctx(), http.MethodPost, "/context", map[string]interface{}{"name": name})
	require.NoError(t, err, fmt.Sprintf("switching to context %s", name))
}
