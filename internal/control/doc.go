// Package control turns feedback controllers into the affine laws
// u = K·x + k that the reachability propagator consumes.
//
//   - [LQR]: u = -G·(x - x*), so K = -G and k = G·x*
//   - [PD]: proportional-derivative on the first state and its rate
//   - [Static]: K and k given directly
//   - [None]: zero input
//
// Every controller implements [Policy]; [Repeat] expands one law over a
// horizon:
//
//	laws, err := control.Repeat(control.NewCartPoleLQR(), 4, cfg.NSafe)
package control
