package pwdriver

import (
	"context"

	"github.com/playwright-community/playwright-go"
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

type Element struct {
	session *Session
	handle  playwright.ElementHandle
}

func (e *Element) Click(ctx context.Context) error {
	_, err := withContext(ctx, func() (struct{}, error) { return struct{}{}, e.handle.Click() })
	return err
}

func (e *Element) SendKeys(ctx context.Context, text string) error {
	_, err := withContext(ctx, func() (struct{}, error) { return struct{}{}, e.handle.Type(text) })
	return err
}

func (e *Element) Property(ctx context.Context, name string) (ldvalue.Value, error) {
	value, err := withContext(ctx, func() (interface{}, error) {
		prop, err := e.handle.GetProperty(name)
		if err != nil {
			return nil, err
		}
		return prop.JSONValue()
	})
	if err != nil {
		return ldvalue.Null(), err
	}
	return ldvalue.CopyArbitraryValue(normalize(value)), nil
}
