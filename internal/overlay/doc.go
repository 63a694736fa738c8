// Package overlay turns a selected address into a georeferenced solar-flux
// image. A Loader runs one pipeline: building lookup, region sizing, raster
// fetch, decode, resample, and rasterize, with the twelve monthly frames
// produced afterwards in the background. A Session tags each run with a
// selection ID so a newer selection discards the results of older ones.
package overlay
