package webdriver

import (
	"context"
	"net/http"
	"net/url"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

type Element struct {
	session *Session
	id      string
}

func (e *Element) reference() map[string]string {
	return map[string]string{elementKey: e.id, legacyElementKey: e.id}
}

func (e *Element) path(p string) string {
	return "/element/" + url.PathEscape(e.id) + p
}

func (e *Element) Click(ctx context.Context) error {
	_, err := e.session.command(ctx, http.MethodPost, e.path("/click"), nil)
	return err
}

func (e *Element) SendKeys(ctx context.Context, text string) error {
	_, err := e.session.command(ctx, http.MethodPost, e.path("/value"), map[string]interface{}{"text": text})
	return err
}

func (e *Element) Property(ctx context.Context, name string) (ldvalue.Value, error) {
	value, err := e.session.command(ctx, http.MethodGet, e.path("/property/"+url.PathEscape(name)), nil)
	if err != nil {
		return ldvalue.Null(), err
	}
	return ldvalue.Parse([]byte(value.Raw)), nil
}
