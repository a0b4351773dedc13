// Package post implements the content lifecycle for the Post service:
// discussions bound to assets, topics inside discussions, and posts inside
// topics, together with the moderation workflow that moves user-authored
// content from draft through moderation to publication.
//
// The package is organized around a small set of interfaces:
//
//   - Service: the main API (lifecycle engine)
//   - Repository: persistence with an atomic status transition primitive
//   - ModerationGateway: dispatch to the external moderation service
//   - AssetService, Authorizer, EventSink: capability interfaces for the
//     sibling Asset, Auth and Notification services
//
// Use New() with functional options to create a service:
//
//	svc, err := post.New(
//	    post.WithRepository(memory.New()),
//	    post.WithModerationGateway(gw),
//	)
package post
