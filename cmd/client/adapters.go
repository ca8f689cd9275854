package main

import (
	"github.com/atotto/clipboard"
	"github.com/pkg/browser"
)

// browserNavigator opens checkout pages in the system browser.
type browserNavigator struct{}

func (browserNavigator) Navigate(url string) error {
	return browser.OpenURL(url)
}

// systemClipboard writes to the OS clipboard.
type systemClipboard struct{}

func (systemClipboard) Copy(text string) error {
	return clipboard.WriteAll(text)
}
