package mysql

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"Pixel_Canvas/internal/model"
)

var DB *gorm.DB

// InitDB 打开数据库并赋给包级 DB。driver 为 mysql 或 sqlite
func InitDB(driver, dsn string) error {
	db, err := Open(driver, dsn)
	if err != nil {
		return err
	}
	DB = db
	return nil
}

func Open(driver, dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{
		// 唯一键冲突统一翻译成 gorm.ErrDuplicatedKey
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	}
	var dialector gorm.Dialector
	switch driver {
	case "mysql":
		dialector = gormmysql.New(gormmysql.Config{
			DSN:                      dsn,
			DefaultDatetimePrecision: &datetimePrecision,
		})
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported db driver %q", driver)
	}

	db, err := gorm.Open(dialector, cfg)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if driver == "sqlite" {
		// sqlite 只允许一个写者
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(50)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}
	return db, nil
}

// 微秒精度，charge 时间戳回读后和内存里的值一致
var datetimePrecision = 6

// AutoMigrate 自动建表（开发阶段 OK）
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.World{},
		&model.PaletteColor{},
		&model.Cell{},
		&model.ChargeState{},
		&model.Ban{},
		&model.Role{},
		&model.UserRole{},
	)
}

func Close() error {
	if DB == nil {
		return nil
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
