package cdp

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

type Element struct {
	session *Session
	tab     *tab
	node    *cdp.Node
}

func (e *Element) Click(ctx context.Context) error {
	return e.session.run(ctx, e.tab.ctx, chromedp.MouseClickNode(e.node))
}

func (e *Element) SendKeys(ctx context.Context, text string) error {
	return e.session.run(ctx, e.tab.ctx, chromedp.KeyEventNode(e.node, text))
}

func (e *Element) Property(ctx context.Context, name string) (ldvalue.Value, error) {
	var result ldvalue.Value
	err := e.session.run(ctx, e.tab.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		obj, err := dom.ResolveNode().WithBackendNodeID(e.node.BackendNodeID).Do(ctx)
		if err != nil {
			return err
		}
		res, exception, err := runtime.CallFunctionOn(fmt.Sprintf("function() { return this[%q]; }", name)).
			WithObjectID(obj.ObjectID).
			WithReturnByValue(true).
			Do(ctx)
		if err != nil {
			return err
		}
		if exception != nil {
			return fmt.Errorf("reading property %s: %s", name, exceptionText(exception))
		}
		result = ldvalue.Parse([]byte(res.Value))
		return nil
	}))
	return result, err
}
