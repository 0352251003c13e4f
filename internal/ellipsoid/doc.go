// Package ellipsoid implements the geometric algebra used by reachability
// propagation. Nothing here depends on a dynamics model.
//
//   - [Ellipsoid]: center and shape matrix; a nil shape is a single point
//   - [Sum]: outer bound of the Minkowski sum of two ellipsoids
//   - [FromBox], [BoundingBox]: conversions between boxes and diagonal ellipsoids
//   - [LagrangeRemainderBox]: worst-case Taylor remainder over an ellipsoid
//   - [Validate], [Contains], [InsideBox], [SemiAxes], [LogVolume], [Project]
//
// # Example
//
//	a := ellipsoid.Diag([]float64{0, 0}, []float64{0.04, 0.04})
//	b := ellipsoid.Diag([]float64{0.1, -0.05}, []float64{0.01, 0.01})
//	s, err := ellipsoid.Sum(a, b)
//
// Every function returns freshly allocated matrices and never modifies its
// arguments.
package ellipsoid
