package mocks

//go:generate mockery --name PropertyEvaluator --srcpkg github.com/aevon-lab/compresolver/internal/core/comp --output ./comp --outpkg compmocks --with-expecter
