package kobo

// LoadInitializationSettings resolves the endpoint directory from the store
// discovery document. It must be called once per session, after the client
// is authenticated and before any resource-backed operation. The directory
// is treated as read-only afterwards.
func (c *Client) LoadInitializationSettings() error {
	var init initializationResponse
	if _, err := c.getJSON(c.storeAPI+"/v1/initialization", nil, &init); err != nil {
		return err
	}
	if len(init.Resources) == 0 {
		return protocolErrorf("initialization response carries no resources; the API format might have changed")
	}

	c.resources = init.Resources
	c.log.Debug().Int("resources", len(init.Resources)).Msg("initialization settings loaded")
	return nil
}

// resource looks up the URL (or URL template) registered for a logical
// resource name. An unresolved directory is a caller error, not a condition
// to recover from.
func (c *Client) resource(name string) (string, error) {
	if c.resources == nil {
		return "", protocolErrorf("initialization settings are not loaded; call LoadInitializationSettings first")
	}
	u, ok := c.resources[name]
	if !ok {
		return "", protocolErrorf("resource %q is missing from the initialization settings", name)
	}
	return u, nil
}
