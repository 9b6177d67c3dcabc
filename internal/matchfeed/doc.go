// Package matchfeed provides a client for the PandaScore esports match feed.
//
// Matches are normalized into model.Match with ids of the form "ps-<feed id>".
// Requests are rate limited and authenticated with a bearer token.
//
// Example usage:
//
//	client := matchfeed.NewClient("https://api.pandascore.co", token)
//	matches, err := client.ListMatches(ctx, "csgo")
package matchfeed
